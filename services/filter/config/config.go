// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads filter definitions from YAML.
//
// A filter file names an optional fixed center, the mandatory match
// criterion and an ordered list of goals. Criterion nodes are written as
// mappings with exactly one key:
//
//	and:       [node, ...]
//	or:        [node, ...]
//	structure: {kind, radius}
//	biome:     {biomes, radius, min_cells}
//	ref:       goal name
//
// A ref resolves to the very criterion built for the named goal, so the
// subtree is shared and evaluated once per world.
//
// Thread Safety:
//
//	All exported functions are safe for concurrent use.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

// Sentinel errors for filter files.
var (
	// ErrUndefinedGoal indicates a ref to a goal that does not exist.
	ErrUndefinedGoal = errors.New("reference to undefined goal")

	// ErrGoalCycle indicates goals that reference each other in a loop.
	ErrGoalCycle = errors.New("goal references form a cycle")

	// ErrInvalidCriterion indicates a malformed criterion node.
	ErrInvalidCriterion = errors.New("invalid criterion")

	// ErrFileTooLarge indicates a filter file above MaxFilterFileSize.
	ErrFileTooLarge = errors.New("filter file too large")
)

// MaxFilterFileSize is the maximum accepted filter file size (1MB).
const MaxFilterFileSize = 1024 * 1024

// File is the root of a filter YAML document.
type File struct {
	Center      *coords.Coordinates `yaml:"center,omitempty"`
	Attribution string              `yaml:"attribution,omitempty" validate:"omitempty,oneof=first_claim every_goal"`
	Match       *Node               `yaml:"match" validate:"required"`
	Goals       []GoalEntry         `yaml:"goals,omitempty" validate:"dive"`
}

// GoalEntry is a named optional criterion.
type GoalEntry struct {
	Name      string `yaml:"name" validate:"required,goalname"`
	Criterion *Node  `yaml:"criterion" validate:"required"`
}

// Node is one criterion. Exactly one field must be set.
type Node struct {
	And       []*Node        `yaml:"and,omitempty" validate:"omitempty,dive,required"`
	Or        []*Node        `yaml:"or,omitempty" validate:"omitempty,dive,required"`
	Structure *StructureNode `yaml:"structure,omitempty"`
	Biome     *BiomeNode     `yaml:"biome,omitempty"`
	Ref       string         `yaml:"ref,omitempty" validate:"omitempty,goalname"`
}

// StructureNode configures a structure leaf.
type StructureNode struct {
	Kind   string `yaml:"kind" validate:"required"`
	Radius int    `yaml:"radius" validate:"lte=64"`
}

// BiomeNode configures a biome leaf.
type BiomeNode struct {
	Biomes   []string `yaml:"biomes" validate:"required,min=1,dive,required"`
	Radius   int      `yaml:"radius" validate:"lte=64"`
	MinCells int      `yaml:"min_cells,omitempty" validate:"gte=0"`
}

// kinds returns the names of the fields set on n.
func (n *Node) kinds() []string {
	var set []string
	if n.And != nil {
		set = append(set, "and")
	}
	if n.Or != nil {
		set = append(set, "or")
	}
	if n.Structure != nil {
		set = append(set, "structure")
	}
	if n.Biome != nil {
		set = append(set, "biome")
	}
	if n.Ref != "" {
		set = append(set, "ref")
	}
	return set
}

var goalNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// fileValidate is the validator instance for filter files.
var fileValidate *validator.Validate

func init() {
	fileValidate = validator.New()
	_ = fileValidate.RegisterValidation("goalname", validateGoalName)
	fileValidate.RegisterStructValidation(validateNode, Node{})
}

func validateGoalName(fl validator.FieldLevel) bool {
	return goalNamePattern.MatchString(fl.Field().String())
}

// validateNode enforces that a node has exactly one kind.
func validateNode(sl validator.StructLevel) {
	n := sl.Current().Interface().(Node)
	if len(n.kinds()) != 1 {
		sl.ReportError(n, "Node", "Node", "onekind", strings.Join(n.kinds(), ","))
	}
}

// Validate checks the structure of f. Goal references are resolved by
// Compile.
func (f *File) Validate() error {
	if err := fileValidate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalidCriterion, describe(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalidCriterion, err)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "onekind":
			got := fe.Param()
			if got == "" {
				got = "none"
			}
			msgs = append(msgs, fmt.Sprintf("%s: node must set exactly one of and/or/structure/biome/ref (got %s)", fe.Namespace(), got))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
