// Package binder fills request structs from URL query strings and path
// parameters.
//
// Fields are matched by struct tag (`query:"limit"`, `path:"id"`), or by the
// lower-cased field name when the tag is missing; `-` skips a field.
// Supported field types are strings, integers, floats, bools, pointers to
// them for optional values, slices for repeated or comma-separated values,
// and anything implementing encoding.TextUnmarshaler such as uuid.UUID.
//
//	type failedRequest struct {
//		Queue string `path:"queue"`
//		Limit int    `query:"limit"`
//	}
//
//	r.Get("/queues/{queue}/failed", handler.Wrap(listFailed,
//		handler.WithBinders[failedRequest](binder.Path(chi.URLParam), binder.Query())))
package binder
