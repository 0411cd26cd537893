// Package sourcetypes keeps the registry of source types the service accepts.
//
// Each source type maps to a Converter: the capability that turns uploaded
// files of that type into structured records. Converters run in external
// worker processes; the registry only records which names exist and how to
// report their readiness. An empty registry is open and accepts any name.
package sourcetypes
