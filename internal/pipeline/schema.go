package pipeline

import (
	"github.com/cedros-gateway/gateway/internal/adapter/soap"
	"github.com/cedros-gateway/gateway/internal/jsonvalue"
	"github.com/cedros-gateway/gateway/internal/store"
)

// schemaFromDoc reads an endpoint_validation document's "rules" field (a
// dotted-path-keyed map of rule objects) into a jsonvalue.Schema, used for
// REST bodies and GraphQL variables (§4.10 step 10).
func schemaFromDoc(doc store.Doc) jsonvalue.Schema {
	raw, _ := doc["rules"].(map[string]interface{})
	if len(raw) == 0 {
		return nil
	}
	schema := make(jsonvalue.Schema, len(raw))
	for path, v := range raw {
		ruleMap, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		schema[path] = fieldRuleFromMap(ruleMap)
	}
	return schema
}

func fieldRuleFromMap(m map[string]interface{}) jsonvalue.FieldRule {
	rule := jsonvalue.FieldRule{}
	if v, ok := m["required"].(bool); ok {
		rule.Required = v
	}
	if v, ok := m["type"].(string); ok {
		rule.Type = v
	}
	if v, ok := m["min"].(float64); ok {
		rule.Min, rule.HasMin = v, true
	}
	if v, ok := m["max"].(float64); ok {
		rule.Max, rule.HasMax = v, true
	}
	if v, ok := m["format"].(string); ok {
		rule.Format = v
	}
	if raw, ok := m["enum"].([]interface{}); ok {
		for _, e := range raw {
			if s, ok := e.(string); ok {
				rule.Enum = append(rule.Enum, s)
			}
		}
	}
	if items, ok := m["array_items"].(map[string]interface{}); ok {
		itemRule := fieldRuleFromMap(items)
		rule.ArrayItems = &itemRule
	}
	return rule
}

// soapSchemaFromDoc reads the same endpoint_validation shape into a
// soap.Schema, whose FieldRule carries integer min/max rather than the
// jsonvalue package's float64 bounds (the SOAP validator only ever measures
// element text length, never a numeric range).
func soapSchemaFromDoc(doc store.Doc) soap.Schema {
	raw, _ := doc["rules"].(map[string]interface{})
	if len(raw) == 0 {
		return nil
	}
	schema := make(soap.Schema, len(raw))
	for field, v := range raw {
		ruleMap, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		rule := soap.FieldRule{}
		if b, ok := ruleMap["required"].(bool); ok {
			rule.Required = b
		}
		if s, ok := ruleMap["type"].(string); ok {
			rule.Type = s
		}
		if n, ok := ruleMap["min"].(float64); ok {
			rule.Min = int(n)
		}
		if n, ok := ruleMap["max"].(float64); ok {
			rule.Max = int(n)
		}
		if s, ok := ruleMap["format"].(string); ok {
			rule.Format = s
		}
		schema[field] = rule
	}
	return schema
}
