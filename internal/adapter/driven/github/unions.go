package github

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// GraphQL unions and interfaces are decoded by __typename into the small
// variant structs below. Each family is a sealed interface; consumers use
// type switches over the variants.

type typenameHeader struct {
	Typename string `json:"__typename"`
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// ownerNode is a RepositoryOwner or ProjectV2Owner.
type ownerNode interface{ isOwnerNode() }

type organizationOwner struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

type userOwner struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// otherOwner covers owner kinds with no URL form of their own.
type otherOwner struct {
	Typename string
}

func (organizationOwner) isOwnerNode() {}
func (userOwner) isOwnerNode()         {}
func (otherOwner) isOwnerNode()        {}

// decodeOwner returns nil for a null owner.
func decodeOwner(raw json.RawMessage) (ownerNode, error) {
	if isNull(raw) {
		return nil, nil
	}
	var head typenameHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("reading owner type: %w", err)
	}

	switch head.Typename {
	case "Organization":
		var o organizationOwner
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("decoding organization: %w", err)
		}
		return o, nil
	case "User":
		var u userOwner
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("decoding user: %w", err)
		}
		return u, nil
	default:
		return otherOwner{Typename: head.Typename}, nil
	}
}

// fieldNode is a ProjectV2FieldConfiguration.
type fieldNode interface{ isFieldNode() }

type singleSelectField struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Options []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"options"`
}

// plainField is any field without options (text, number, date, iteration).
type plainField struct {
	Typename string `json:"__typename"`
	ID       string `json:"id"`
	Name     string `json:"name"`
}

func (singleSelectField) isFieldNode() {}
func (plainField) isFieldNode()        {}

// decodeField returns nil for a null node.
func decodeField(raw json.RawMessage) (fieldNode, error) {
	if isNull(raw) {
		return nil, nil
	}
	var head typenameHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("reading field type: %w", err)
	}

	if head.Typename == "ProjectV2SingleSelectField" {
		var f singleSelectField
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decoding single-select field: %w", err)
		}
		return f, nil
	}

	var f plainField
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", head.Typename, err)
	}
	return f, nil
}

// fieldValueNode is a ProjectV2ItemFieldValue.
type fieldValueNode interface{ isFieldValueNode() }

// singleSelectValue is the value of a single-select field on an item.
// FieldName is empty when the owning field is not a single-select field.
type singleSelectValue struct {
	Name      string
	OptionID  string
	FieldName string
}

type otherFieldValue struct {
	Typename string
}

func (singleSelectValue) isFieldValueNode() {}
func (otherFieldValue) isFieldValueNode()   {}

// decodeFieldValue returns nil for a null node.
func decodeFieldValue(raw json.RawMessage) (fieldValueNode, error) {
	if isNull(raw) {
		return nil, nil
	}
	var head typenameHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("reading field value type: %w", err)
	}
	if head.Typename != "ProjectV2ItemFieldSingleSelectValue" {
		return otherFieldValue{Typename: head.Typename}, nil
	}

	var v struct {
		Name     string `json:"name"`
		OptionID string `json:"optionId"`
		Field    struct {
			Typename string `json:"__typename"`
			Name     string `json:"name"`
		} `json:"field"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding single-select value: %w", err)
	}

	out := singleSelectValue{Name: v.Name, OptionID: v.OptionID}
	if v.Field.Typename == "ProjectV2SingleSelectField" {
		out.FieldName = v.Field.Name
	}
	return out, nil
}
