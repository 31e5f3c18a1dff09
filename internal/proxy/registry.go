// internal/proxy/registry.go
package proxy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resource maps a portal resource name to its upstream Admin API surface.
// The scope resource defaults to the name; paths are relative to the
// versioned admin base.
type Resource struct {
	Name          string   `yaml:"name"`
	ScopeResource string   `yaml:"scope_resource"`
	Path          string   `yaml:"path"`    // collection path, e.g. /orders.json
	IDPath        string   `yaml:"id_path"` // item path, {id} placeholder
	IDExpr        string   `yaml:"id_expr"` // jmespath into upstream response for the created id
	Methods       []string `yaml:"methods"` // allowed methods; empty means all of GET/POST/PUT/DELETE
}

func (r Resource) allows(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Registry is a static table with an explicit fallback rule: an unlisted
// resource gets scope read_/write_<resource> and path /<resource>.json. This
// replaces runtime string-keyed method dispatch with a declarative mapping.
type Registry struct {
	byName map[string]Resource
}

func builtinResources() []Resource {
	return []Resource{
		{Name: "orders", Path: "/orders.json", IDPath: "/orders/{id}.json", IDExpr: "order.id", Methods: []string{"GET", "PUT"}},
		{Name: "products", Path: "/products.json", IDPath: "/products/{id}.json", IDExpr: "product.id", Methods: []string{"GET", "POST", "PUT"}},
		{Name: "customers", Path: "/customers.json", IDPath: "/customers/{id}.json", IDExpr: "customer.id", Methods: []string{"GET", "PUT"}},
		{Name: "inventory", ScopeResource: "inventory", Path: "/inventory_levels.json", IDPath: "/inventory_levels.json", Methods: []string{"GET", "POST"}},
		{Name: "locations", Path: "/locations.json", IDPath: "/locations/{id}.json", Methods: []string{"GET"}},
	}
}

func NewRegistry() *Registry {
	r := &Registry{byName: map[string]Resource{}}
	for _, res := range builtinResources() {
		r.byName[res.Name] = withDefaults(res)
	}
	return r
}

func withDefaults(res Resource) Resource {
	if res.ScopeResource == "" {
		res.ScopeResource = res.Name
	}
	if res.Path == "" {
		res.Path = "/" + res.Name + ".json"
	}
	if res.IDPath == "" {
		res.IDPath = "/" + res.Name + "/{id}.json"
	}
	return res
}

// LoadOverrides merges entries from a YAML file over the builtins. Operators
// use this to add or repath resources without a deploy.
func (r *Registry) LoadOverrides(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("resource registry read: %w", err)
	}
	var entries []Resource
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("resource registry parse: %w", err)
	}
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("resource registry: entry missing name")
		}
		r.byName[e.Name] = withDefaults(e)
	}
	return nil
}

// Resolve returns the entry for a resource name, synthesizing the fallback
// rule for unlisted names. The second return reports whether the resource was
// explicitly listed.
func (r *Registry) Resolve(name string) (Resource, bool) {
	if res, ok := r.byName[name]; ok {
		return res, true
	}
	return withDefaults(Resource{Name: name}), false
}

// ItemPath expands the {id} placeholder.
func (res Resource) ItemPath(id string) string {
	return strings.ReplaceAll(res.IDPath, "{id}", id)
}
