// Package textutil holds small string helpers shared by the song request
// pipeline: filename sanitization for persisted audio and display truncation
// for status strings.
package textutil
