// Package language normalizes ISO 639 language codes and matches subtitle
// file names against a configured set of languages.
//
// A small built-in table covers the languages vtranscoder users configure
// most; anything else falls back to the CLDR data in golang.org/x/text.
package language
