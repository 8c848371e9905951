package model

import (
    "fmt"
    "strconv"
    "strings"
)

// FieldKind enumerates the supported kinds of dynamic enrollment form
// fields.  Each kind carries its own validator; there is no runtime
// schema interpretation.
type FieldKind string

const (
    FieldText         FieldKind = "text"
    FieldNumber       FieldKind = "number"
    FieldSingleChoice FieldKind = "single_choice"
    FieldMultiChoice  FieldKind = "multi_choice"
    FieldBoolean      FieldKind = "boolean"
    FieldFile         FieldKind = "file"
)

// FieldDef describes one dynamic field of an event's enrollment form.
// Choices is only meaningful for the choice kinds.
type FieldDef struct {
    Name     string    `json:"name"`
    Kind     FieldKind `json:"kind"`
    Required bool      `json:"required"`
    Choices  []string  `json:"choices,omitempty"`
}

// Validate checks a submitted answer against the definition.  The answer
// is the raw string (multi-choice answers are comma separated, file
// answers are an opaque storage reference).  An empty answer is accepted
// unless the field is required.
func (f *FieldDef) Validate(answer string) error {
    if strings.TrimSpace(answer) == "" {
        if f.Required {
            return fmt.Errorf("field %q is required", f.Name)
        }
        return nil
    }
    switch f.Kind {
    case FieldText, FieldFile:
        return nil
    case FieldNumber:
        if _, err := strconv.ParseFloat(answer, 64); err != nil {
            return fmt.Errorf("field %q: %q is not a number", f.Name, answer)
        }
        return nil
    case FieldBoolean:
        switch strings.ToLower(answer) {
        case "true", "false", "1", "0", "yes", "no":
            return nil
        }
        return fmt.Errorf("field %q: %q is not a boolean", f.Name, answer)
    case FieldSingleChoice:
        if !f.choice(answer) {
            return fmt.Errorf("field %q: %q is not one of the choices", f.Name, answer)
        }
        return nil
    case FieldMultiChoice:
        for _, part := range strings.Split(answer, ",") {
            part = strings.TrimSpace(part)
            if part == "" {
                continue
            }
            if !f.choice(part) {
                return fmt.Errorf("field %q: %q is not one of the choices", f.Name, part)
            }
        }
        return nil
    }
    return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
}

func (f *FieldDef) choice(v string) bool {
    for _, c := range f.Choices {
        if c == v {
            return true
        }
    }
    return false
}

// ValidateAnswers checks a full set of submitted answers against the
// event's field definitions.  Unknown answer keys are rejected so typos
// do not silently drop data.
func ValidateAnswers(defs []FieldDef, answers map[string]string) error {
    byName := make(map[string]*FieldDef, len(defs))
    for i := range defs {
        byName[defs[i].Name] = &defs[i]
    }
    for name := range answers {
        if _, ok := byName[name]; !ok {
            return fmt.Errorf("unknown field %q", name)
        }
    }
    for i := range defs {
        if err := defs[i].Validate(answers[defs[i].Name]); err != nil {
            return err
        }
    }
    return nil
}
