package cookiejar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
)

var log = logger.GetLogger("cookiejar")

var enc = base64.RawURLEncoding

// Options configures a cookie jar adapter
type Options struct {
	Name     string               // Adapter name
	MaxBytes int                  // Maximum size of the cookie header (0 = unlimited)
	Locks    lockmgr.ILockManager // Optional lock manager for exclusive resource ownership
}

type cookieJarAdapter struct {
	opts  Options
	claim *lockmgr.Claim

	mu          sync.RWMutex
	initialized bool
	jar         string // the cookie header, "name=value; name=value"
}

// New creates a cookie jar adapter.
func New(opts Options) adapter.Adapter {
	return &cookieJarAdapter{
		opts:  opts,
		claim: lockmgr.NewClaim(opts.Locks, opts.Name),
	}
}

func (a *cookieJarAdapter) Name() string { return a.opts.Name }

func (a *cookieJarAdapter) Info() adapter.Info {
	a.mu.RLock()
	size := len(a.jar)
	a.mu.RUnlock()

	return adapter.Info{
		Name:       a.opts.Name,
		Backend:    adapter.BackendCookieJar,
		Strategy:   adapter.StrategyBulk,
		Duplicates: adapter.DuplicateOverwrite,
		Missing:    adapter.MissingError,
		Matching:   document.MatchSubstring,
		Metadata: map[string]int{
			"jar_bytes": size,
			"max_bytes": a.opts.MaxBytes,
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (a *cookieJarAdapter) Init(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	if err := a.claim.Acquire(); err != nil {
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}
	a.initialized = true
	return nil
}

func (a *cookieJarAdapter) WriteDocs(_ context.Context, docs []document.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return adapter.NotInitialized(a.opts.Name, adapter.OpWriteDocs)
	}
	// an empty cookie name makes the whole jar unparsable
	for i := range docs {
		if docs[i].ID == "" {
			return adapter.NewErrorf(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, "document %d has an empty id", i)
		}
	}

	cookies, err := a.parse()
	if err != nil {
		return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, err)
	}

	position := make(map[string]int, len(cookies))
	for i, c := range cookies {
		position[c.Name] = i
	}

	for i := range docs {
		raw, err := json.Marshal(&docs[i])
		if err != nil {
			return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, err)
		}
		c := &http.Cookie{Name: enc.EncodeToString([]byte(docs[i].ID)), Value: enc.EncodeToString(raw)}
		if pos, ok := position[c.Name]; ok {
			cookies[pos] = c
			continue
		}
		position[c.Name] = len(cookies)
		cookies = append(cookies, c)
	}

	jar := serialize(cookies)
	if a.opts.MaxBytes > 0 && len(jar) > a.opts.MaxBytes {
		return adapter.NewErrorf(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs,
			"cookie jar quota exceeded (%d > %d bytes)", len(jar), a.opts.MaxBytes)
	}
	a.jar = jar
	return nil
}

func (a *cookieJarAdapter) FindDocs(_ context.Context, ids []string) ([]document.Document, error) {
	docs, err := a.load(adapter.OpFindDocs)
	if err != nil {
		return nil, err
	}

	found, missing := adapter.SelectIDs(docs, ids)
	if len(missing) > 0 {
		return nil, adapter.NewErrorf(adapter.RetCNotFound, a.opts.Name, adapter.OpFindDocs,
			"%d ids not stored: %s", len(missing), strings.Join(missing, ", "))
	}
	return found, nil
}

func (a *cookieJarAdapter) QueryRegex(_ context.Context, pattern string) ([]document.Document, error) {
	return a.query(adapter.OpQueryRegex, pattern, document.NoAgeBound)
}

func (a *cookieJarAdapter) QueryIndex(_ context.Context, minAge int) ([]document.Document, error) {
	return a.query(adapter.OpQueryIndex, "", minAge)
}

func (a *cookieJarAdapter) QueryRegexIndex(_ context.Context, pattern string, minAge int) ([]document.Document, error) {
	return a.query(adapter.OpQueryRegexIndex, pattern, minAge)
}

func (a *cookieJarAdapter) Clear(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jar = ""
	a.initialized = false
	if err := a.claim.Release(); err != nil {
		return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
	}
	log.Debugf("%s: cleared", a.opts.Name)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (a *cookieJarAdapter) query(op, pattern string, minAge int) ([]document.Document, error) {
	q, err := adapter.OpQuery(a.opts.Name, op, document.MatchSubstring, pattern, minAge)
	if err != nil {
		return nil, err
	}
	docs, err := a.load(op)
	if err != nil {
		return nil, err
	}
	return adapter.Filter(docs, q), nil
}

// load parses and decodes the whole jar
func (a *cookieJarAdapter) load(op string) ([]document.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return nil, adapter.NotInitialized(a.opts.Name, op)
	}

	cookies, err := a.parse()
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, err)
	}

	docs := make([]document.Document, len(cookies))
	for i, c := range cookies {
		raw, err := enc.DecodeString(c.Value)
		if err != nil {
			return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, err)
		}
		if err := json.Unmarshal(raw, &docs[i]); err != nil {
			return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, err)
		}
	}
	return docs, nil
}

// parse splits the jar into cookies, the caller holds a.mu.
// http.ParseCookie caps the number of pairs per header, a jar holding a whole
// benchmark data set exceeds it, so pairs are split here and validated by net/http.
func (a *cookieJarAdapter) parse() ([]*http.Cookie, error) {
	if a.jar == "" {
		return nil, nil
	}

	pairs := strings.Split(a.jar, ";")
	cookies := make([]*http.Cookie, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("malformed cookie pair %q", pair)
		}
		c := &http.Cookie{Name: name, Value: value}
		if err := c.Valid(); err != nil {
			return nil, err
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

func serialize(cookies []*http.Cookie) string {
	var sb strings.Builder
	for i, c := range cookies {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(c.Name)
		sb.WriteByte('=')
		sb.WriteString(c.Value)
	}
	return sb.String()
}
