package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

// moneyFields hold amounts in cents on the wire but are typed as decimals
// on the command line.
var moneyFields = map[string]bool{
	"amount":              true,
	"limit":               true,
	"rolloverCap":         true,
	"accumulatedRollover": true,
}

// parseAssignments turns key=value arguments into a JSON object. Money
// fields accept decimals ("12,50"), integers and booleans keep their type,
// and "today" is accepted for date fields.
func parseAssignments(args []string, today core.Date) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", arg)
		}
		raw, err := fieldValue(key, strings.TrimSpace(value), today)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out[key] = raw
	}
	return out, nil
}

func fieldValue(key, value string, today core.Date) (json.RawMessage, error) {
	switch {
	case moneyFields[key]:
		cents, err := core.ParseDecimalToCents(value)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(strconv.FormatInt(cents, 10)), nil
	case value == "true" || value == "false":
		return json.RawMessage(value), nil
	case isDateField(key) && value == "today":
		return json.Marshal(today.String())
	}
	if _, err := strconv.Atoi(value); err == nil && !isStringField(key) {
		return json.RawMessage(value), nil
	}
	return json.Marshal(value)
}

func isDateField(key string) bool {
	return key == "date" || strings.HasSuffix(key, "Date")
}

// isStringField lists fields that look numeric but are text.
func isStringField(key string) bool {
	switch key {
	case "id", "last4", "accountNumber", "description", "name":
		return true
	}
	return strings.HasSuffix(key, "Id")
}

// buildRecord decodes assignments on top of base (which may be nil) into a
// record of the given entity. Unknown keys are rejected.
func buildRecord(entity core.Entity, base core.Record, fields map[string]json.RawMessage) (core.Record, error) {
	merged := map[string]json.RawMessage{}
	if base != nil {
		data, err := json.Marshal(base)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &merged); err != nil {
			return nil, err
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	rec, err := core.NewRecord(entity)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entity, err)
	}
	return rec, nil
}
