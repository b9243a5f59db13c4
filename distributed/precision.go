package distributed

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/benbjohnson/dcpa"
	"github.com/pkg/errors"
)

// PrecisionPayload is the wire shape of a precision. Predicates are given
// in their uninstantiated textual form.
type PrecisionPayload struct {
	LocationInstances  map[string][]string `yaml:"locationInstances,omitempty"`
	LocalPredicates    map[int][]string    `yaml:"localPredicates,omitempty"`
	FunctionPredicates map[string][]string `yaml:"functionPredicates,omitempty"`
	Global             []string            `yaml:"global,omitempty"`
}

// SerializePrecision encodes p in its wire shape.
func (o *PredicateOperators) SerializePrecision(p *dcpa.Precision) *PrecisionPayload {
	payload := &PrecisionPayload{}
	p.EachLocationInstance(func(li dcpa.LocationInstance, preds dcpa.PredicateSet) {
		if payload.LocationInstances == nil {
			payload.LocationInstances = make(map[string][]string)
		}
		payload.LocationInstances[li.String()] = preds.Strings()
	})
	p.EachLocal(func(node int, preds dcpa.PredicateSet) {
		if payload.LocalPredicates == nil {
			payload.LocalPredicates = make(map[int][]string)
		}
		payload.LocalPredicates[node] = preds.Strings()
	})
	p.EachFunction(func(name string, preds dcpa.PredicateSet) {
		if payload.FunctionPredicates == nil {
			payload.FunctionPredicates = make(map[string][]string)
		}
		payload.FunctionPredicates[name] = preds.Strings()
	})
	if global := p.Global(); global.Len() > 0 {
		payload.Global = global.Strings()
	}
	return payload
}

// DeserializePrecision decodes a precision. The value may be a payload as
// returned by SerializePrecision or the generic map it decodes to. Node
// numbers are resolved through the node lookup.
func (o *PredicateOperators) DeserializePrecision(v interface{}) (*dcpa.Precision, error) {
	var payload *PrecisionPayload
	switch v := v.(type) {
	case nil:
		return dcpa.NewPrecision(), nil
	case *PrecisionPayload:
		payload = v
	case PrecisionPayload:
		payload = &v
	case map[string]interface{}, map[interface{}]interface{}:
		p, err := precisionPayloadFromMap(v)
		if err != nil {
			return nil, errors.Wrapf(err, "block %s", o.Block)
		}
		payload = p
	default:
		return nil, errors.Wrapf(ErrUnsupportedPrecision, "block %s: %T", o.Block, v)
	}

	p := dcpa.NewPrecision()
	for key, texts := range payload.LocationInstances {
		li, err := dcpa.ParseLocationInstance(key)
		if err != nil {
			return nil, errors.Wrapf(ErrUnsupportedPrecision, "block %s: %s", o.Block, err)
		} else if _, ok := o.Nodes.Node(li.Node); !ok {
			return nil, errors.Wrapf(ErrUnknownNode, "block %s: precision: N%d", o.Block, li.Node)
		}
		preds, err := parsePredicates(texts)
		if err != nil {
			return nil, errors.Wrapf(err, "block %s: location instance %s", o.Block, key)
		}
		p = p.AddLocationInstance(li, preds...)
	}
	for node, texts := range payload.LocalPredicates {
		if _, ok := o.Nodes.Node(node); !ok {
			return nil, errors.Wrapf(ErrUnknownNode, "block %s: precision: N%d", o.Block, node)
		}
		preds, err := parsePredicates(texts)
		if err != nil {
			return nil, errors.Wrapf(err, "block %s: node %d", o.Block, node)
		}
		p = p.AddLocal(node, preds...)
	}
	for name, texts := range payload.FunctionPredicates {
		preds, err := parsePredicates(texts)
		if err != nil {
			return nil, errors.Wrapf(err, "block %s: function %s", o.Block, name)
		}
		p = p.AddFunction(name, preds...)
	}
	preds, err := parsePredicates(payload.Global)
	if err != nil {
		return nil, errors.Wrapf(err, "block %s: global", o.Block)
	}
	return p.AddGlobal(preds...), nil
}

// CombinePrecision returns the scope-wise union of precisions.
func (o *PredicateOperators) CombinePrecision(precisions []*dcpa.Precision) *dcpa.Precision {
	if len(precisions) == 0 {
		dcpa.Violate("combine precision", o.Block, "no precisions")
	}
	result := precisions[0]
	for _, p := range precisions[1:] {
		result = result.Union(p)
	}
	return result
}

func parsePredicates(texts []string) ([]dcpa.Expr, error) {
	preds := make([]dcpa.Expr, 0, len(texts))
	for _, text := range texts {
		pred, err := dcpa.ParseExpr(text)
		if err != nil {
			return nil, err
		} else if w := dcpa.ExprWidth(pred); w != dcpa.WidthBool {
			return nil, fmt.Errorf("predicate of width %d: %s", w, text)
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

// precisionPayloadFromMap converts the generic form produced by decoding a
// payload without a target type.
func precisionPayloadFromMap(v interface{}) (*PrecisionPayload, error) {
	m, err := stringMap(v)
	if err != nil {
		return nil, err
	}

	payload := &PrecisionPayload{}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := m[key]
		switch key {
		case "locationInstances":
			if payload.LocationInstances, err = stringListMap(value); err != nil {
				return nil, errors.Wrap(err, key)
			}
		case "localPredicates":
			lists, err := stringListMap(value)
			if err != nil {
				return nil, errors.Wrap(err, key)
			}
			payload.LocalPredicates = make(map[int][]string, len(lists))
			for k, list := range lists {
				node, err := strconv.Atoi(k)
				if err != nil {
					return nil, errors.Wrapf(ErrUnsupportedPrecision, "%s: node %q", key, k)
				}
				payload.LocalPredicates[node] = list
			}
		case "functionPredicates":
			if payload.FunctionPredicates, err = stringListMap(value); err != nil {
				return nil, errors.Wrap(err, key)
			}
		case "global":
			if payload.Global, err = stringList(value); err != nil {
				return nil, errors.Wrap(err, key)
			}
		default:
			return nil, errors.Wrapf(ErrUnsupportedPrecision, "unknown key %q", key)
		}
	}
	return payload, nil
}

func stringMap(v interface{}) (map[string]interface{}, error) {
	switch v := v.(type) {
	case map[string]interface{}:
		return v, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, value := range v {
			switch k := k.(type) {
			case string:
				m[k] = value
			case int:
				m[strconv.Itoa(k)] = value
			default:
				return nil, errors.Wrapf(ErrUnsupportedPrecision, "key of type %T", k)
			}
		}
		return m, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedPrecision, "expected map, got %T", v)
	}
}

func stringListMap(v interface{}) (map[string][]string, error) {
	m, err := stringMap(v)
	if err != nil {
		return nil, err
	}
	lists := make(map[string][]string, len(m))
	for k, value := range m {
		if lists[k], err = stringList(value); err != nil {
			return nil, errors.Wrapf(err, "key %q", k)
		}
	}
	return lists, nil
}

func stringList(v interface{}) ([]string, error) {
	switch v := v.(type) {
	case []string:
		return v, nil
	case []interface{}:
		a := make([]string, len(v))
		for i := range v {
			s, ok := v[i].(string)
			if !ok {
				return nil, errors.Wrapf(ErrUnsupportedPrecision, "list element of type %T", v[i])
			}
			a[i] = s
		}
		return a, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedPrecision, "expected list, got %T", v)
	}
}
