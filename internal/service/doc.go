// Package service implements the operations that span more than one
// registry.
//
// ExportService reads a consistent snapshot of every table and value in a
// database file and hands it to the codecs: the workbook codec for the
// spreadsheet export and the manifest codecs for a catalog summary. The
// workbook is written to a temporary file beside the destination and renamed
// into place, so a failed export never leaves a partial file behind.
//
// Services only read through repository.Repository; exporting never mutates
// the database.
package service
