package invariant

import (
	"context"
	"strings"
	"sync"

	"github.com/go-python/gpython/py"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/graph"

	_ "github.com/go-python/gpython/stdlib"
)

// PythonPrefix selects a script oracle, e.g. "python:usp.py".
const PythonPrefix = "python:"

// ScriptFunc is the function a script oracle must define.  It is called as invariant(n, edges) where edges is a
// tuple of (a, b) vertex pairs numbered from 0, and must return an int.
const ScriptFunc = "invariant"

var ErrScript = errors.New("invariant script failed")

// Script is an Oracle backed by a Python script run in an embedded interpreter.
// Calls are serialized since an interpreter context is not safe for concurrent use.
type Script struct {
	mu       sync.Mutex
	pathname string
	ctx      py.Context
	fn       py.Object
}

// LoadScript runs the script at pathname and binds its invariant function.
func LoadScript(pathname string) (*Script, error) {
	ctx := py.NewContext(py.DefaultContextOpts())

	module, err := py.RunFile(ctx, pathname, py.CompileOpts{}, nil)
	if err != nil {
		ctx.Close()
		return nil, errors.Wrapf(ErrScript, "%s: %v", pathname, err)
	}
	fn, ok := module.Globals[ScriptFunc]
	if !ok {
		ctx.Close()
		return nil, errors.Wrapf(ErrScript, "%s does not define %s(n, edges)", pathname, ScriptFunc)
	}

	klog.V(1).Infof("loaded invariant script %s", pathname)
	return &Script{
		pathname: pathname,
		ctx:      ctx,
		fn:       fn,
	}, nil
}

func (sc *Script) Value(ctx context.Context, X *graph.Graph) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	edges := X.Edges()
	pyEdges := make(py.Tuple, len(edges))
	for i, e := range edges {
		pyEdges[i] = py.Tuple{py.Int(e.A), py.Int(e.B)}
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.fn == nil {
		return 0, errors.Wrapf(ErrScript, "%s is closed", sc.pathname)
	}

	out, err := py.Call(sc.fn, py.Tuple{py.Int(X.Order()), pyEdges}, nil)
	if err != nil {
		return 0, errors.Wrapf(ErrScript, "%s(%v): %v", ScriptFunc, X, err)
	}
	v, ok := out.(py.Int)
	if !ok {
		return 0, errors.Wrapf(ErrScript, "%s(%v) returned %s, want int", ScriptFunc, X, out.Type().Name)
	}
	return int(v), nil
}

// Close shuts down the interpreter.
func (sc *Script) Close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.fn == nil {
		return nil
	}
	sc.fn = nil
	sc.ctx.Close()
	<-sc.ctx.Done()
	return nil
}

// scriptPath returns the script named by a "python:" oracle name.
func scriptPath(name string) (string, bool) {
	path, found := strings.CutPrefix(name, PythonPrefix)
	return path, found && path != ""
}

// IsScript reports if name selects a script oracle.
func IsScript(name string) bool {
	_, ok := scriptPath(name)
	return ok
}
