package manifest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/pumpkin/pkg/ast"
	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

var log = commonlog.GetLogger("pumpkin.manifest")

// Resolver builds the module registry from the [modules] and
// [module-files] sections.
type Resolver struct {
	manifest  *Manifest
	resolved  map[string]bytecode.Value
	resolving map[string]bool
}

// NewResolver creates a new module resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve returns every configured module keyed by import path. Module files
// are run in dependency order (imports before importers), and each may import
// inline modules and other module files.
func (r *Resolver) Resolve(ctx context.Context) (map[string]bytecode.Value, error) {
	r.resolved = make(map[string]bytecode.Value)
	r.resolving = make(map[string]bool)

	for _, name := range sortedKeys(r.manifest.Modules) {
		v, err := tableValue(r.manifest.Modules[name], []string{"modules", name}, r.manifest.keyOrder)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		r.resolved[name] = v
	}

	for _, name := range sortedKeys(r.manifest.ModuleFiles) {
		if err := r.resolveFile(ctx, name, nil); err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
	}
	return r.resolved, nil
}

// resolveFile runs one module file after the module files it imports.
func (r *Resolver) resolveFile(ctx context.Context, name string, chain []string) error {
	if _, ok := r.resolved[name]; ok {
		return nil
	}
	chain = append(chain, name)
	if r.resolving[name] {
		return fmt.Errorf("import cycle: %s", strings.Join(chain, " -> "))
	}
	r.resolving[name] = true
	defer delete(r.resolving, name)

	path := r.manifest.resolve(r.manifest.ModuleFiles[name])
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("module file %q not found: %w", name, err)
	}
	prog, err := ast.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("parse error in %s: %w", path, err)
	}

	for _, dep := range Imports(prog) {
		if _, isFile := r.manifest.ModuleFiles[dep]; !isFile {
			// Inline modules are already resolved; anything else is
			// reported by import at run time.
			continue
		}
		if err := r.resolveFile(ctx, dep, chain); err != nil {
			return err
		}
	}

	res := runtime.Execute(ctx, prog,
		runtime.WithLimits(r.manifest.RuntimeLimits()),
		runtime.WithModules(r.resolved),
	)
	for _, line := range res.Output {
		log.Debugf("%s: %s", name, line)
	}
	if !res.Success {
		return fmt.Errorf("running %s: %w", path, res.Error)
	}

	r.resolved[name] = exportsValue(res.Exports)
	log.Infof("loaded module %s from %s (%d exports)", name, path, len(res.Exports))
	return nil
}

// Imports lists the modules prog imports, in order of first appearance.
func Imports(prog *ast.Program) []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(stmts []ast.Statement)
	walkBlock := func(b *ast.Block) {
		if b != nil {
			walk(b.Body)
		}
	}
	walk = func(stmts []ast.Statement) {
		for _, stmt := range stmts {
			switch s := stmt.(type) {
			case *ast.ImportStmt:
				if !seen[s.Module] {
					seen[s.Module] = true
					names = append(names, s.Module)
				}
			case *ast.Block:
				walk(s.Body)
			case *ast.IfStmt:
				walkBlock(s.Then)
				walkBlock(s.Else)
			case *ast.RepeatStmt:
				walkBlock(s.Body)
			case *ast.WhileStmt:
				walkBlock(s.Body)
			case *ast.FuncDecl:
				walkBlock(s.Body)
			case *ast.ExportStmt:
				walk([]ast.Statement{s.Declaration})
			}
		}
	}
	walk(prog.Body)
	return names
}

func exportsValue(exports map[string]bytecode.Value) bytecode.Value {
	obj := bytecode.NewObject()
	for _, name := range sortedKeys(exports) {
		obj.Set(name, exports[name])
	}
	return bytecode.ObjectValue(obj)
}

// tableValue converts a decoded TOML table into an object, keeping the key
// order of the document where it is known.
func tableValue(table map[string]interface{}, path []string, order map[string][]string) (bytecode.Value, error) {
	obj := bytecode.NewObject()
	done := make(map[string]bool, len(table))
	keys := append([]string(nil), order[orderKey(path)]...)
	keys = append(keys, sortedKeys(table)...)
	for _, k := range keys {
		raw, ok := table[k]
		if !ok || done[k] {
			continue
		}
		done[k] = true
		v, err := tomlValue(raw, append(path, k), order)
		if err != nil {
			return bytecode.Null, err
		}
		obj.Set(k, v)
	}
	return bytecode.ObjectValue(obj), nil
}

func tomlValue(raw interface{}, path []string, order map[string][]string) (bytecode.Value, error) {
	switch v := raw.(type) {
	case string:
		return bytecode.StringValue(v), nil
	case int64:
		return bytecode.NumberValue(float64(v)), nil
	case float64:
		return bytecode.NumberValue(v), nil
	case bool:
		return bytecode.BoolValue(v), nil
	case map[string]interface{}:
		return tableValue(v, path, order)
	case []map[string]interface{}:
		items := make([]bytecode.Value, len(v))
		for i, t := range v {
			item, err := tableValue(t, path, order)
			if err != nil {
				return bytecode.Null, err
			}
			items[i] = item
		}
		return bytecode.NewListValue(items...), nil
	case []interface{}:
		items := make([]bytecode.Value, len(v))
		for i, elem := range v {
			item, err := tomlValue(elem, path, order)
			if err != nil {
				return bytecode.Null, err
			}
			items[i] = item
		}
		return bytecode.NewListValue(items...), nil
	default:
		return bytecode.Null, fmt.Errorf("%s: unsupported value of type %T", strings.Join(path[1:], "."), raw)
	}
}

// moduleKeyOrder groups the keys under [modules] by their parent table.
func moduleKeyOrder(keys []toml.Key) map[string][]string {
	order := make(map[string][]string)
	seen := make(map[string]bool)
	for _, k := range keys {
		if len(k) < 3 || k[0] != "modules" {
			continue
		}
		full := orderKey(k)
		if seen[full] {
			continue
		}
		seen[full] = true
		parent := orderKey(k[:len(k)-1])
		order[parent] = append(order[parent], k[len(k)-1])
	}
	return order
}

func orderKey(path []string) string {
	return strings.Join(path, "\x00")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
