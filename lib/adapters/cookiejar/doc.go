// Package cookiejar implements the cookie backend: all documents live in one
// cookie header string, one name=value pair per document.
//
// The cookie name is the base64url encoded document id, the value the base64url
// encoded JSON document, so arbitrary ids and texts survive the cookie grammar.
// The jar is parsed with net/http on every call, there is no other structure to
// query. MaxBytes emulates the size quota of a browser cookie store.
package cookiejar
