//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package handoff

import (
	"fmt"
	"strings"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/log"
	"github.com/ensembleworks/ensemble/model"
)

// Filter transforms the conversation state handed to a delegated agent.
// Filters must be total: any input produces a usable output.
type Filter func(InputData) InputData

// FilterFactory builds a parameterized filter. Template files reference
// factories by name; the engine initializes them with defaults when no
// parameters are given.
type FilterFactory func(prefix string, keepRecent int) Filter

// Defaults applied when a summarize factory is referenced without
// parameters.
const (
	DefaultSummarizePrefix = "History summary"
	DefaultKeepRecent      = 2
)

// summaryItemLimit caps each collapsed line in a history summary.
const summaryItemLimit = 100

// RemoveAllTools drops tool calls and tool results from every sequence,
// leaving plain conversation only.
func RemoveAllTools(d InputData) InputData {
	return InputData{
		InputHistory:    dropToolItems(d.InputHistory),
		PreHandoffItems: dropToolItems(d.PreHandoffItems),
		NewItems:        dropToolItems(d.NewItems),
	}
}

// KeepUserMessagesOnly keeps only user messages in the history, clearing
// the generated sequences entirely.
func KeepUserMessagesOnly(d InputData) InputData {
	var history []agent.Message
	for _, m := range d.InputHistory {
		if m.Role == model.RoleUser {
			history = append(history, m)
		}
	}
	return InputData{InputHistory: history}
}

// CustomFilter lifts a plain history-rewriting function into a Filter.
// The function sees a copy of the input history; the generated sequences
// pass through untouched.
func CustomFilter(fn func([]agent.Message) []agent.Message) Filter {
	if fn == nil {
		return func(d InputData) InputData { return d }
	}
	return func(d InputData) InputData {
		history := append([]agent.Message(nil), d.InputHistory...)
		return InputData{
			InputHistory:    fn(history),
			PreHandoffItems: d.PreHandoffItems,
			NewItems:        d.NewItems,
		}
	}
}

// SummarizeHistory returns a filter that collapses all but the most
// recent messages into a single synthetic system item. keepRecent counts
// exchanges; twice that many messages survive verbatim.
func SummarizeHistory(prefix string, keepRecent int) Filter {
	if prefix == "" {
		prefix = DefaultSummarizePrefix
	}
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}
	return func(d InputData) InputData {
		keep := keepRecent * 2
		if len(d.InputHistory) <= keep {
			return d
		}
		older := d.InputHistory[:len(d.InputHistory)-keep]
		recent := d.InputHistory[len(d.InputHistory)-keep:]
		lines := make([]string, 0, len(older))
		for _, m := range older {
			content := m.Content
			if runes := []rune(content); len(runes) > summaryItemLimit {
				content = string(runes[:summaryItemLimit]) + "…"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", m.Role, content))
		}
		summary := agent.Message{
			Role:    model.RoleSystem,
			Content: prefix + ":\n" + strings.Join(lines, "\n"),
		}
		history := make([]agent.Message, 0, len(recent)+1)
		history = append(history, summary)
		history = append(history, recent...)
		return InputData{
			InputHistory:    history,
			PreHandoffItems: d.PreHandoffItems,
			NewItems:        d.NewItems,
		}
	}
}

// Wrap guards a filter so a panic or malformed behavior in user code can
// never corrupt the handoff: on panic the input passes through unchanged.
// Wrapping a nil filter yields the identity.
func Wrap(f Filter) Filter {
	if f == nil {
		return func(d InputData) InputData { return d }
	}
	return func(d InputData) (out InputData) {
		defer func() {
			if r := recover(); r != nil {
				log.Warnf("handoff input filter panicked, passing input through: %v", r)
				out = d
			}
		}()
		out = f(d)
		return out
	}
}

// ResolveFilter maps the heterogeneous filter shapes a handoff source may
// carry onto a safety-wrapped Filter. Accepted shapes: nil, Filter,
// FilterFactory (initialized with defaults), and a built-in filter name.
// Unknown shapes resolve to the identity with a warning.
func ResolveFilter(v any) Filter {
	switch f := v.(type) {
	case nil:
		return Wrap(nil)
	case Filter:
		return Wrap(f)
	case func(InputData) InputData:
		return Wrap(f)
	case FilterFactory:
		return Wrap(f(DefaultSummarizePrefix, DefaultKeepRecent))
	case func(string, int) Filter:
		return Wrap(f(DefaultSummarizePrefix, DefaultKeepRecent))
	case func([]agent.Message) []agent.Message:
		return Wrap(CustomFilter(f))
	case string:
		return ResolveNamedFilter(f, DefaultSummarizePrefix, DefaultKeepRecent)
	default:
		log.Warnf("unrecognized handoff input filter %T, using identity", v)
		return Wrap(nil)
	}
}

// ResolveNamedFilter maps a template-file filter name to a wrapped
// filter. Unknown names resolve to the identity with a warning.
func ResolveNamedFilter(name, prefix string, keepRecent int) Filter {
	switch name {
	case "", "custom":
		return Wrap(nil)
	case "remove_tools":
		return Wrap(RemoveAllTools)
	case "user_only":
		return Wrap(KeepUserMessagesOnly)
	case "summarize":
		return Wrap(SummarizeHistory(prefix, keepRecent))
	default:
		log.Warnf("unknown handoff input filter %q, using identity", name)
		return Wrap(nil)
	}
}

func dropToolItems(msgs []agent.Message) []agent.Message {
	var out []agent.Message
	for _, m := range msgs {
		if m.IsToolRelated() {
			continue
		}
		out = append(out, m)
	}
	return out
}
