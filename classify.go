/*
Copyright © 2026 the Reanest authors.
This file is part of Reanest.

Reanest is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Reanest is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Reanest.  If not, see <http://www.gnu.org/licenses/>.
*/

package reanest

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Category describes how a variable aggregates over time.
type Category int

const (
	// CategoryAverage marks intensive quantities such as temperature
	// and pressure. They average over both space and time.
	CategoryAverage Category = iota

	// CategorySum marks accumulated quantities such as precipitation.
	// They average over space and sum over time, with a calendar
	// correction at monthly and yearly frequencies.
	CategorySum

	// CategoryMax marks period-maximum quantities.
	CategoryMax

	// CategoryMin marks period-minimum quantities.
	CategoryMin

	// CategoryRate marks mean-rate quantities. They average over both
	// space and time but are reported separately because summing them
	// would double-count the accumulation they derive from.
	CategoryRate
)

func (c Category) String() string {
	switch c {
	case CategorySum:
		return "sum"
	case CategoryMax:
		return "max"
	case CategoryMin:
		return "min"
	case CategoryRate:
		return "rate"
	default:
		return "average"
	}
}

//go:embed variables.toml
var variableTable []byte

type categoryLists struct {
	Names  []string `toml:"names"`
	Tokens []string `toml:"tokens"`
}

type variableConfig struct {
	Sum  categoryLists `toml:"sum"`
	Max  categoryLists `toml:"max"`
	Min  categoryLists `toml:"min"`
	Rate categoryLists `toml:"rate"`
}

var (
	classifyOnce sync.Once
	nameIndex    map[string]Category
	tokenIndex   map[string]Category
)

// classifyPriority orders the categories for token matching: a variable
// matching several token lists takes the highest-priority category.
var classifyPriority = []Category{CategorySum, CategoryMax, CategoryMin, CategoryRate}

func buildClassifyIndex() {
	var cfg variableConfig
	if err := toml.Unmarshal(variableTable, &cfg); err != nil {
		panic("reanest: decoding embedded variable table: " + err.Error())
	}
	lists := map[Category]categoryLists{
		CategorySum:  cfg.Sum,
		CategoryMax:  cfg.Max,
		CategoryMin:  cfg.Min,
		CategoryRate: cfg.Rate,
	}
	nameIndex = make(map[string]Category)
	tokenIndex = make(map[string]Category)
	// High-priority categories claim names and tokens first.
	for i := len(classifyPriority) - 1; i >= 0; i-- {
		c := classifyPriority[i]
		for _, n := range lists[c].Names {
			nameIndex[strings.ToLower(n)] = c
		}
		for _, t := range lists[c].Tokens {
			tokenIndex[strings.ToLower(t)] = c
		}
	}
}

// Classify returns the aggregation category for a variable name. The
// name is matched case-insensitively, first as a whole and then by its
// underscore-separated tokens. Unknown variables are averaged.
func Classify(variable string) Category {
	classifyOnce.Do(buildClassifyIndex)
	name := strings.ToLower(strings.TrimSpace(variable))
	if c, ok := nameIndex[name]; ok {
		return c
	}
	best := CategoryAverage
	bestRank := len(classifyPriority)
	for _, tok := range strings.Split(name, "_") {
		c, ok := tokenIndex[tok]
		if !ok {
			continue
		}
		for rank, p := range classifyPriority {
			if p == c && rank < bestRank {
				best, bestRank = c, rank
			}
		}
	}
	return best
}

// ClassifyColumns maps each column name to its category.
func ClassifyColumns(columns []string) map[string]Category {
	m := make(map[string]Category, len(columns))
	for _, c := range columns {
		m[c] = Classify(c)
	}
	return m
}
