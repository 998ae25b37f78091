package discovery

import (
	"fmt"
	"sort"

	"github.com/heimdalr/dag"
)

// Plan is a validated handler set with its execution waves. It is built once
// and reused across runs.
type Plan struct {
	handlers   map[string]Handler
	deps       map[string][]string
	produces   map[string][]string
	producer   map[string]string
	dependents map[string][]string
	fields     []string
	waves      [][]string
}

// NewPlan validates handlers and orders them into waves. Every handler of a
// wave depends only on fields produced by earlier waves.
func NewPlan(handlers []Handler) (*Plan, error) {
	p := &Plan{
		handlers:   make(map[string]Handler, len(handlers)),
		deps:       make(map[string][]string, len(handlers)),
		produces:   make(map[string][]string),
		producer:   make(map[string]string),
		dependents: make(map[string][]string, len(handlers)),
	}

	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("nil handler")
		}
		field := h.Field()
		if field == "" {
			return nil, fmt.Errorf("handler with empty field name")
		}
		if _, ok := p.handlers[field]; ok {
			return nil, &DuplicateFieldError{Field: field}
		}
		p.handlers[field] = h
		p.producer[field] = field
	}

	names := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, field := range names {
		extras := uniqueSorted(producedFields(p.handlers[field]))
		for _, extra := range extras {
			if _, ok := p.producer[extra]; ok {
				return nil, &DuplicateFieldError{Field: extra}
			}
			p.producer[extra] = field
		}
		p.produces[field] = extras
	}

	for _, field := range names {
		deps := uniqueSorted(p.handlers[field].Dependencies())
		for _, dep := range deps {
			owner, ok := p.producer[dep]
			if !ok {
				return nil, &UnknownDependencyError{Field: field, Dependency: dep}
			}
			if owner == field {
				return nil, &DependencyCycleError{Field: field, Dependency: dep}
			}
		}
		p.deps[field] = deps
	}

	graph, err := p.buildGraph(names)
	if err != nil {
		return nil, err
	}
	if err := p.order(graph, names); err != nil {
		return nil, err
	}

	for _, field := range names {
		p.fields = append(p.fields, field)
		p.fields = append(p.fields, p.produces[field]...)
	}
	sort.Strings(p.fields)
	return p, nil
}

func (p *Plan) buildGraph(names []string) (*dag.DAG, error) {
	graph := dag.NewDAG()
	for _, field := range names {
		if err := graph.AddVertexByID(field, field); err != nil {
			return nil, fmt.Errorf("add field %q: %w", field, err)
		}
	}
	for _, field := range names {
		seen := make(map[string]struct{})
		for _, dep := range p.deps[field] {
			owner := p.producer[dep]
			if _, ok := seen[owner]; ok {
				continue
			}
			seen[owner] = struct{}{}
			// Unknown ids, self edges and duplicates are ruled out above, so
			// any remaining failure is a loop.
			if err := graph.AddEdge(owner, field); err != nil {
				return nil, &DependencyCycleError{Field: field, Dependency: dep}
			}
		}
	}
	return graph, nil
}

// order assigns each field the length of its longest dependency chain and
// groups fields of equal depth into waves.
func (p *Plan) order(graph *dag.DAG, names []string) error {
	depth := make(map[string]int, len(names))
	var visit func(string) (int, error)
	visit = func(field string) (int, error) {
		if d, ok := depth[field]; ok {
			return d, nil
		}
		parents, err := graph.GetParents(field)
		if err != nil {
			return 0, err
		}
		d := 0
		for id := range parents {
			pd, err := visit(id)
			if err != nil {
				return 0, err
			}
			if pd+1 > d {
				d = pd + 1
			}
		}
		depth[field] = d
		return d, nil
	}

	maxDepth := -1
	for _, field := range names {
		d, err := visit(field)
		if err != nil {
			return fmt.Errorf("order field %q: %w", field, err)
		}
		if d > maxDepth {
			maxDepth = d
		}

		descendants, err := graph.GetDescendants(field)
		if err != nil {
			return fmt.Errorf("dependents of %q: %w", field, err)
		}
		dependents := make([]string, 0, len(descendants))
		for id := range descendants {
			dependents = append(dependents, id)
		}
		sort.Strings(dependents)
		p.dependents[field] = dependents
	}

	p.waves = make([][]string, maxDepth+1)
	for _, field := range names {
		p.waves[depth[field]] = append(p.waves[depth[field]], field)
	}
	return nil
}

// Fields returns every field a run records, extras included, sorted.
func (p *Plan) Fields() []string {
	return append([]string(nil), p.fields...)
}

// Waves returns the handler field names grouped by execution wave.
func (p *Plan) Waves() [][]string {
	out := make([][]string, len(p.waves))
	for i, wave := range p.waves {
		out[i] = append([]string(nil), wave...)
	}
	return out
}

// Handler returns the handler owning field.
func (p *Plan) Handler(field string) (Handler, bool) {
	h, ok := p.handlers[field]
	return h, ok
}

// Dependents returns the handler fields that transitively depend on field.
func (p *Plan) Dependents(field string) []string {
	return append([]string(nil), p.dependents[field]...)
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
