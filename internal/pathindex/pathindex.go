// Package pathindex turns cascade rules into path templates for one root
// entity. It performs no I/O: wildcards and root bindings are left for the
// scanner to resolve.
package pathindex

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/store"
)

const idPlaceholder = "{id}"

var bindingPattern = regexp.MustCompile(`\{root\.([A-Za-z0-9_.]+)(?:\|([a-z]+))?\}`)

// Binding is a "{root.<field>|<filter>}" placeholder
type Binding struct {
	raw    string
	Field  string
	Filter string
}

// ParseBinding parses a whole path segment as a root binding
func ParseBinding(seg string) (Binding, bool) {
	m := bindingPattern.FindStringSubmatch(seg)
	if m == nil || m[0] != seg {
		return Binding{}, false
	}
	return Binding{raw: strings.Trim(seg, "{}"), Field: m[1], Filter: m[2]}, true
}

func rootBindings(tmpl string) []Binding {
	var out []Binding
	for _, m := range bindingPattern.FindAllStringSubmatch(tmpl, -1) {
		out = append(out, Binding{raw: strings.Trim(m[0], "{}"), Field: m[1], Filter: m[2]})
	}
	return out
}

// Condition is a where clause with {id} bound
type Condition struct {
	Field  string
	Equals any
	Min    *float64
	Max    *float64
}

// Template is one path template with the root id substituted.
type Template struct {
	Path    string
	Op      models.Op
	Payload any
	Where   *Condition
}

// Segments splits the template path
func (t Template) Segments() []string {
	return store.Split(t.Path)
}

// IsConcrete reports whether the template needs no scanning
func (t Template) IsConcrete() bool {
	for _, s := range t.Segments() {
		if isVariable(s) {
			return false
		}
	}
	return true
}

func (t Template) String() string {
	if t.Where == nil {
		return string(t.Op) + " " + t.Path
	}
	return fmt.Sprintf("%s %s where %s", t.Op, t.Path, t.Where.Field)
}

// StorageTarget is an object storage deletion, possibly with root bindings
type StorageTarget struct {
	Prefix bool
	Ref    string
}

// Expansion is everything a rule derives for one root entity
type Expansion struct {
	Kind      models.Kind
	Event     Event
	ID        string
	Source    string
	Templates []Template
	Storage   []StorageTarget
	Search    []string
}

// Index is the immutable, validated rule lookup
type Index struct {
	rules   map[string]CascadeRule
	indexes *store.IndexSet
}

// New builds an Index from a validated rule set
func New(rs *RuleSet) (*Index, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	ix := &Index{rules: make(map[string]CascadeRule, len(rs.Rules)), indexes: rs.IndexSet()}
	for _, r := range rs.Rules {
		ix.rules[ruleKey(r.Kind, r.Event)] = r
	}
	return ix, nil
}

// Default builds an Index from the embedded rules
func Default() (*Index, error) {
	rs, err := DefaultRuleSet()
	if err != nil {
		return nil, err
	}
	return New(rs)
}

// Indexes returns the secondary indexes the rules depend on
func (ix *Index) Indexes() *store.IndexSet {
	return ix.indexes
}

// PathsFor returns the delete templates for the entity kind/id
func (ix *Index) PathsFor(kind models.Kind, id string) ([]Template, error) {
	exp, err := ix.Expand(kind, EventDelete, id)
	if err != nil {
		return nil, err
	}
	return exp.Templates, nil
}

// Expand substitutes id into the rule for (kind, event).
func (ix *Index) Expand(kind models.Kind, event Event, id string) (*Expansion, error) {
	if _, err := models.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	rule, ok := ix.rules[ruleKey(kind, event)]
	if !ok {
		return nil, apperrors.Configuration("kind", "no %s rule for kind %q", event, kind)
	}
	if err := validateID(id); err != nil {
		return nil, apperrors.Configuration(string(kind), "invalid id %q", id).WithCause(err)
	}
	id = strings.Join(store.Split(id), "/")

	exp := &Expansion{
		Kind:   kind,
		Event:  event,
		ID:     id,
		Source: bind(rule.Source, id),
		Search: append([]string(nil), rule.Search...),
	}
	for _, p := range rule.Paths {
		t := Template{Path: bind(p.Path, id), Op: p.Op, Payload: p.Payload}
		if p.Where != nil {
			c := &Condition{Field: bind(p.Where.Field, id), Min: p.Where.Min, Max: p.Where.Max}
			if p.Where.Equals != nil {
				c.Equals = bind(*p.Where.Equals, id)
			}
			t.Where = c
		}
		exp.Templates = append(exp.Templates, t)
	}
	for _, s := range rule.Storage {
		if s.Prefix != "" {
			exp.Storage = append(exp.Storage, StorageTarget{Prefix: true, Ref: bind(s.Prefix, id)})
		} else {
			exp.Storage = append(exp.Storage, StorageTarget{Ref: bind(s.Object, id)})
		}
	}
	return exp, nil
}

// Rules returns the configured (kind, event) pairs
func (ix *Index) Rules() []CascadeRule {
	out := make([]CascadeRule, 0, len(ix.rules))
	for _, r := range ix.rules {
		out = append(out, r)
	}
	return out
}

func ruleKey(kind models.Kind, event Event) string {
	return string(kind) + "/" + string(event)
}

func bind(tmpl, id string) string {
	return strings.ReplaceAll(tmpl, idPlaceholder, id)
}

func validateID(id string) error {
	parts := store.Split(id)
	if len(parts) == 0 {
		return fmt.Errorf("empty id")
	}
	for _, p := range parts {
		if p == store.Wildcard || strings.ContainsAny(p, "{}") {
			return fmt.Errorf("id segment %q is not a literal", p)
		}
		if err := store.ValidKey(p); err != nil {
			return err
		}
	}
	return nil
}
