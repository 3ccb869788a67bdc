package connector

import "encoding/json"

// SideLoaded models a JSON:API-style "included" section keyed by type,
// as shipped by Teamwork v3. Records within are raw JSON so the enricher
// stays agnostic to the vendor's per-type schema.
type SideLoaded map[string]map[string]json.RawMessage // type -> id -> record

// ParseSideLoaded indexes an "included" array (list of {id, type, ...}
// objects) by (type, id) for enrichment lookups.
func ParseSideLoaded(included []json.RawMessage) (SideLoaded, error) {
	result := make(SideLoaded)
	for _, raw := range included {
		var header struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &header); err != nil {
			continue
		}
		if header.Type == "" || header.ID == "" {
			continue
		}
		if result[header.Type] == nil {
			result[header.Type] = make(map[string]json.RawMessage)
		}
		result[header.Type][header.ID] = raw
	}
	return result, nil
}

// reference is the three shapes a JSON:API relation can take: a bare id
// string, a {id: ...} object, or a list of either.
type reference struct {
	single *string
	multi  []string
}

func parseReference(raw json.RawMessage) reference {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return reference{single: &asString}
	}
	var asObj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &asObj); err == nil && asObj.ID != "" {
		return reference{single: &asObj.ID}
	}
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		ids := make([]string, 0, len(asList))
		for _, item := range asList {
			if r := parseReference(item); r.single != nil {
				ids = append(ids, *r.single)
			}
		}
		return reference{multi: ids}
	}
	return reference{}
}

// Enrich attaches referenced side-loaded objects onto a primary record
// under underscored keys (e.g. "_project", "_assignees"), handling all
// three reference representations (§4.1 included/side-loaded data).
// relations maps the primary record's relationship field name to the
// target type it references and the underscored key to attach results
// under, e.g. {"project": {Type: "projects", As: "_project"}}.
func Enrich(primary map[string]json.RawMessage, relations map[string]struct {
	Type string
	As   string
}, side SideLoaded) map[string]json.RawMessage {
	enriched := make(map[string]json.RawMessage, len(primary))
	for k, v := range primary {
		enriched[k] = v
	}

	for field, rel := range relations {
		rawRef, ok := primary[field]
		if !ok {
			continue
		}
		ref := parseReference(rawRef)
		byID := side[rel.Type]
		if byID == nil {
			continue
		}

		if ref.single != nil {
			if obj, found := byID[*ref.single]; found {
				enriched[rel.As] = obj
			}
			continue
		}
		if len(ref.multi) > 0 {
			objs := make([]json.RawMessage, 0, len(ref.multi))
			for _, id := range ref.multi {
				if obj, found := byID[id]; found {
					objs = append(objs, obj)
				}
			}
			if len(objs) > 0 {
				if marshaled, err := json.Marshal(objs); err == nil {
					enriched[rel.As] = marshaled
				}
			}
		}
	}

	return enriched
}
