package pathindex

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/store"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Event names what happened to the root entity
type Event string

const (
	EventDelete Event = "delete"
	EventExpire Event = "expire"
)

// Search targets understood by the search mirror
const (
	SearchPost          = "post"
	SearchPostsByAuthor = "posts_by_author"
)

// Filters usable in root bindings ("{root.text|hashtags}")
const FilterHashtags = "hashtags"

var (
	knownSearchTargets = map[string]bool{SearchPost: true, SearchPostsByAuthor: true}
	knownFilters       = map[string]bool{FilterHashtags: true}
)

// RuleSet is the parsed rules document
type RuleSet struct {
	Version int           `yaml:"version"`
	Indexes []store.Index `yaml:"indexes"`
	Rules   []CascadeRule `yaml:"rules"`
}

// CascadeRule maps (kind, event) to the paths that must be nulled or set.
type CascadeRule struct {
	Kind    models.Kind   `yaml:"kind"`
	Event   Event         `yaml:"event"`
	Source  string        `yaml:"source"`
	Paths   []PathRule    `yaml:"paths"`
	Storage []StorageRule `yaml:"storage"`
	Search  []string      `yaml:"search"`
}

// PathRule is one path template of a rule
type PathRule struct {
	Path    string    `yaml:"path"`
	Op      models.Op `yaml:"op"`
	Payload any       `yaml:"payload"`
	Where   *Where    `yaml:"where"`
}

// Where restricts the last wildcard of a path to children whose Field
// matches, through a declared index.
type Where struct {
	Field  string   `yaml:"field"`
	Equals *string  `yaml:"equals"`
	Min    *float64 `yaml:"min"`
	Max    *float64 `yaml:"max"`
}

// StorageRule names objects to remove from object storage: every object
// under Prefix, or the single object Object.
type StorageRule struct {
	Prefix string `yaml:"prefix"`
	Object string `yaml:"object"`
}

// DefaultRuleSet parses the rules compiled into the binary
func DefaultRuleSet() (*RuleSet, error) {
	return ParseRuleSet(defaultRules)
}

// LoadRuleSet reads rules from file, or the defaults when file is empty
func LoadRuleSet(file string) (*RuleSet, error) {
	if file == "" {
		return DefaultRuleSet()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, apperrors.Configuration("rules", "cannot read %s", file).WithCause(err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet decodes and validates a rules document
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, apperrors.Configuration("rules", "cannot decode rules").WithCause(err)
	}
	for i := range rs.Rules {
		for j := range rs.Rules[i].Paths {
			if rs.Rules[i].Paths[j].Op == "" {
				rs.Rules[i].Paths[j].Op = models.OpDelete
			}
		}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// IndexSet returns the declared indexes for the store
func (rs *RuleSet) IndexSet() *store.IndexSet {
	return store.NewIndexSet(rs.Indexes...)
}

// Validate rejects malformed rules with a ConfigurationError
func (rs *RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return apperrors.Configuration("rules", "no rules declared")
	}
	indexes := rs.IndexSet()
	seen := make(map[string]bool)
	for _, rule := range rs.Rules {
		subject := fmt.Sprintf("rule %s/%s", rule.Kind, rule.Event)
		if _, err := models.ParseKind(string(rule.Kind)); err != nil {
			return apperrors.Configuration(subject, "unknown kind %q", rule.Kind)
		}
		if rule.Event != EventDelete && rule.Event != EventExpire {
			return apperrors.Configuration(subject, "unknown event %q", rule.Event)
		}
		key := string(rule.Kind) + "/" + string(rule.Event)
		if seen[key] {
			return apperrors.Configuration(subject, "declared twice")
		}
		seen[key] = true
		if len(rule.Paths) == 0 {
			return apperrors.Configuration(subject, "has no paths")
		}
		if rule.Source != "" && (strings.Contains(rule.Source, "*") || strings.Contains(rule.Source, "{root.")) {
			return apperrors.Configuration(subject, "source %s must be concrete once {id} is bound", rule.Source)
		}

		for _, p := range rule.Paths {
			if err := validatePath(rule, p, indexes); err != nil {
				return apperrors.Configuration(subject, "path %s: %s", p.Path, err.Error())
			}
		}
		if err := checkCommute(rule.Paths); err != nil {
			return apperrors.Configuration(subject, "%s", err.Error())
		}
		for _, s := range rule.Storage {
			if (s.Prefix == "") == (s.Object == "") {
				return apperrors.Configuration(subject, "storage entries need exactly one of prefix or object")
			}
			if err := checkBindings(rule, s.Prefix+s.Object); err != nil {
				return apperrors.Configuration(subject, "storage %s: %s", s.Prefix+s.Object, err.Error())
			}
		}
		for _, target := range rule.Search {
			if !knownSearchTargets[target] {
				return apperrors.Configuration(subject, "unknown search target %q", target)
			}
		}
	}
	return nil
}

func validatePath(rule CascadeRule, p PathRule, indexes *store.IndexSet) error {
	if !strings.HasPrefix(p.Path, "/") {
		return fmt.Errorf("must be absolute")
	}
	if !p.Op.Valid() {
		return fmt.Errorf("unknown op %q", p.Op)
	}
	if p.Op == models.OpSet && p.Payload == nil {
		return fmt.Errorf("set without payload")
	}
	if p.Op == models.OpDelete && p.Payload != nil {
		return fmt.Errorf("delete with payload")
	}
	if err := checkBindings(rule, p.Path); err != nil {
		return err
	}

	segs := store.Split(p.Path)
	last := lastWildcard(segs)
	if p.Where == nil {
		return nil
	}
	if last < 0 {
		return fmt.Errorf("where clause without a wildcard segment")
	}
	w := p.Where
	conditions := 0
	if w.Equals != nil {
		conditions++
	}
	if w.Min != nil || w.Max != nil {
		conditions++
	}
	if w.Field == "" || conditions != 1 {
		return fmt.Errorf("where needs a field and exactly one of equals or min/max")
	}

	coll := patternOf(segs[:last])
	field := patternOf(store.Split(w.Field))
	for _, idx := range indexes.All() {
		if patternCovers(store.Split(idx.Collection), coll) && patternCovers(store.Split(idx.Field), field) {
			return nil
		}
	}
	return fmt.Errorf("query %s[%s] does not match a declared index", strings.Join(coll, "/"), w.Field)
}

func checkBindings(rule CascadeRule, tmpl string) error {
	for _, b := range rootBindings(tmpl) {
		if rule.Source == "" {
			return fmt.Errorf("binding {%s} needs a source record", b.raw)
		}
		if b.Filter != "" && !knownFilters[b.Filter] {
			return fmt.Errorf("unknown filter %q", b.Filter)
		}
	}
	return nil
}

// checkCommute rejects templates that could address the same subtree with
// different effects, since their order of application would matter.
func checkCommute(paths []PathRule) error {
	for i := range paths {
		for j := i + 1; j < len(paths); j++ {
			a, b := paths[i], paths[j]
			if !patternsOverlap(store.Split(a.Path), store.Split(b.Path)) {
				continue
			}
			if a.Op == models.OpDelete && b.Op == models.OpDelete {
				continue
			}
			if a.Op == b.Op && a.Path == b.Path && store.Equal(a.Payload, b.Payload) {
				continue
			}
			return fmt.Errorf("templates %s (%s) and %s (%s) do not commute", a.Path, a.Op, b.Path, b.Op)
		}
	}
	return nil
}

// patternsOverlap reports whether one pattern could be a prefix of the other
func patternsOverlap(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if isVariable(a[i]) || isVariable(b[i]) {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func patternOf(segs []string) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		if isVariable(s) {
			out[i] = store.Wildcard
		} else {
			out[i] = s
		}
	}
	return out
}

// patternCovers reports whether index pattern idx serves every concrete
// path query pattern q could produce.
func patternCovers(idx, q []string) bool {
	if len(idx) != len(q) {
		return false
	}
	for i := range idx {
		if idx[i] != store.Wildcard && idx[i] != q[i] {
			return false
		}
	}
	return true
}

func isVariable(seg string) bool {
	return seg == store.Wildcard || (strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"))
}

func lastWildcard(segs []string) int {
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == store.Wildcard {
			return i
		}
	}
	return -1
}
