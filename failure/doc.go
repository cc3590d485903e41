// Package failure classifies raw execution errors into a fixed set of
// categories that drive fallback planning.
//
// Classification is table-driven: each category owns an ordered list of
// regular expressions, a message scores matched/total per category, and the
// highest score wins with ties broken by table order. A message matching
// nothing classifies as Unknown. The table is supplied at construction, so
// categories extend without touching call sites.
//
// The package also carries the success heuristic for tool output: a result
// with no explicit error, non-trivial output, and a low density of
// error-vocabulary tokens is treated as successful. Legitimate content can
// mention failure words without being a failure; the density threshold is a
// tunable constant, not a principled value.
package failure
