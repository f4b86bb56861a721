package util

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/adapters/appendfile"
	"github.com/pubkey/storagebench/lib/adapters/cookiejar"
	"github.com/pubkey/storagebench/lib/adapters/docstore"
	"github.com/pubkey/storagebench/lib/adapters/idb"
	"github.com/pubkey/storagebench/lib/adapters/kvmap"
	"github.com/pubkey/storagebench/lib/adapters/sqlstore"
	"github.com/pubkey/storagebench/lib/compose/mapped"
	"github.com/pubkey/storagebench/lib/compose/replicated"
	"github.com/pubkey/storagebench/lib/compose/sharded"
	"github.com/pubkey/storagebench/lib/lockmgr"
	"github.com/pubkey/storagebench/rpc/client"
	"github.com/pubkey/storagebench/rpc/serializer"
)

// Prefixes of the composed backends. They nest, e.g. "sharded-worker-docstore-memory"
// is a sharded adapter whose children are in-process workers hosting a docstore.
const (
	PrefixSharded = "sharded-"
	PrefixMapped  = "mapped-"
	PrefixWorker  = "worker-"
	PrefixProcess = "process-"
)

// BackendOptions are shared by every backend built for one run
type BackendOptions struct {
	Name       string               // Resource name of the adapter
	DataDir    string               // Parent directory of file based backends (empty = temp dir)
	Shards     int                  // Number of children of sharded backends (0 = 4)
	Serializer string               // Serializer between proxy and worker
	LogLevel   string               // Log level of spawned worker processes
	Locks      lockmgr.ILockManager // Optional lock manager shared by the adapters
}

func (o BackendOptions) dir() string {
	if o.DataDir != "" {
		return o.DataDir
	}
	return filepath.Join(os.TempDir(), "storagebench")
}

func (o BackendOptions) shards() int {
	if o.Shards > 0 {
		return o.Shards
	}
	return 4
}

var baseBackends = map[string]func(o BackendOptions) adapter.Adapter{
	"kvmap": func(o BackendOptions) adapter.Adapter {
		return kvmap.New(kvmap.Options{Name: o.Name, Locks: o.Locks})
	},
	"kvmap-snapshot": func(o BackendOptions) adapter.Adapter {
		return kvmap.New(kvmap.Options{Name: o.Name, Snapshot: filepath.Join(o.dir(), o.Name+".json"), Locks: o.Locks})
	},
	"cookiejar": func(o BackendOptions) adapter.Adapter {
		return cookiejar.New(cookiejar.Options{Name: o.Name, Locks: o.Locks})
	},
	"idb-cursor": func(o BackendOptions) adapter.Adapter {
		return idb.NewCursor(idb.Options{Name: o.Name, Dir: o.dir(), Locks: o.Locks})
	},
	"idb-bulk": func(o BackendOptions) adapter.Adapter {
		return idb.NewBulk(idb.Options{Name: o.Name, Dir: o.dir(), Locks: o.Locks})
	},
	"appendfile": func(o BackendOptions) adapter.Adapter {
		return appendfile.New(appendfile.Options{Name: o.Name, Dir: o.dir(), Locks: o.Locks})
	},
	"appendfile-directio": func(o BackendOptions) adapter.Adapter {
		return appendfile.New(appendfile.Options{Name: o.Name, Dir: o.dir(), DirectIO: true, Locks: o.Locks})
	},
	"sqlstore-memory": func(o BackendOptions) adapter.Adapter {
		return sqlstore.New(sqlstore.Options{Name: o.Name, Locks: o.Locks})
	},
	"sqlstore-file": func(o BackendOptions) adapter.Adapter {
		return sqlstore.New(sqlstore.Options{Name: o.Name, Dir: o.dir(), Locks: o.Locks})
	},
	"docstore-memory": func(o BackendOptions) adapter.Adapter {
		return docstore.New(docstore.Options{Name: o.Name, Locks: o.Locks})
	},
	"docstore-pebble": func(o BackendOptions) adapter.Adapter {
		return docstore.New(docstore.Options{Name: o.Name, Dir: o.dir(), Locks: o.Locks})
	},
	"replicated": func(o BackendOptions) adapter.Adapter {
		return replicated.New(replicated.Options{Name: o.Name, Dir: o.dir(), Locks: o.Locks})
	},
}

// Backends returns the names of the base backends, sorted. Every name can be
// combined with the composition prefixes.
func Backends() []string {
	names := make([]string, 0, len(baseBackends))
	for name := range baseBackends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewBackend builds the adapter registered under kind
func NewBackend(kind string, opts BackendOptions) (adapter.Adapter, error) {
	factory, err := BackendFactory(kind, opts)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// BackendFactory resolves kind into a factory of fresh adapter instances
func BackendFactory(kind string, opts BackendOptions) (adapter.Factory, error) {
	if build, ok := baseBackends[kind]; ok {
		return func() adapter.Adapter { return build(opts) }, nil
	}

	switch {
	case strings.HasPrefix(kind, PrefixSharded):
		base := strings.TrimPrefix(kind, PrefixSharded)
		children := make([]adapter.Factory, opts.shards())
		for i := range children {
			childOpts := opts
			childOpts.Name = fmt.Sprintf("%s-%d", opts.Name, i)
			child, err := BackendFactory(base, childOpts)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		return func() adapter.Adapter {
			return sharded.NewFromFactory(opts.Name, len(children), func(i int) adapter.Adapter { return children[i]() })
		}, nil

	case strings.HasPrefix(kind, PrefixMapped):
		underlying, err := BackendFactory(strings.TrimPrefix(kind, PrefixMapped), opts)
		if err != nil {
			return nil, err
		}
		return func() adapter.Adapter {
			return mapped.New(mapped.Options{Name: opts.Name, Underlying: underlying()})
		}, nil

	case strings.HasPrefix(kind, PrefixWorker):
		hosted, err := BackendFactory(strings.TrimPrefix(kind, PrefixWorker), opts)
		if err != nil {
			return nil, err
		}
		ser, err := serializer.ByName(opts.Serializer)
		if err != nil {
			return nil, err
		}
		return func() adapter.Adapter {
			return client.NewWorkerAdapter(client.Options{
				Name:       opts.Name,
				Spawner:    client.InProcess(hosted, ser),
				Serializer: ser,
				Hosted:     hosted().Info(),
			})
		}, nil

	case strings.HasPrefix(kind, PrefixProcess):
		base := strings.TrimPrefix(kind, PrefixProcess)
		hosted, err := BackendFactory(base, opts)
		if err != nil {
			return nil, err
		}
		ser, err := serializer.ByName(opts.Serializer)
		if err != nil {
			return nil, err
		}
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("can't locate the worker executable: %w", err)
		}
		logLevel := opts.LogLevel
		if logLevel == "" {
			logLevel = "info"
		}
		args := []string{"worker",
			"--backend", base,
			"--name", opts.Name,
			"--data-dir", opts.DataDir,
			"--serializer", opts.Serializer,
			"--log-level", logLevel,
		}
		return func() adapter.Adapter {
			return client.NewWorkerAdapter(client.Options{
				Name:       opts.Name,
				Spawner:    client.Process(exe, args...),
				Serializer: ser,
				Hosted:     hosted().Info(),
			})
		}, nil
	}

	return nil, fmt.Errorf("unknown backend %q, must be one of %s (optionally prefixed with %s, %s, %s or %s)",
		kind, strings.Join(Backends(), ", "), PrefixSharded, PrefixMapped, PrefixWorker, PrefixProcess)
}
