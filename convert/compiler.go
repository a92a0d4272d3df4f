package convert

import (
	"reflect"
	"strings"
	"sync"

	"github.com/wippyai/addon-bridge/internal/casing"
)

// structPlan is the compiled host-object layout for one Go struct type.
// Plans are immutable after construction and cached for the process
// lifetime.
type structPlan struct {
	fields []fieldPlan
}

type fieldPlan struct {
	name  string
	index []int
}

var planCache sync.Map // reflect.Type -> *structPlan

// planFor compiles (or fetches) the field plan for a struct type.
func planFor(t reflect.Type) *structPlan {
	if cached, ok := planCache.Load(t); ok {
		return cached.(*structPlan)
	}
	p := &structPlan{}
	collectFields(t, nil, p)
	actual, _ := planCache.LoadOrStore(t, p)
	return actual.(*structPlan)
}

// collectFields walks exported fields, flattening anonymous embedded structs
// the way encoding/json does.
func collectFields(t reflect.Type, prefix []int, p *structPlan) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("bridge")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		idx := make([]int, 0, len(prefix)+1)
		idx = append(idx, prefix...)
		idx = append(idx, i)

		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			collectFields(f.Type, idx, p)
			continue
		}
		if name == "" {
			name = casing.LowerCamel(f.Name)
		}
		p.fields = append(p.fields, fieldPlan{name: name, index: idx})
	}
}
