package binder

import "net/http"

// Path binds path parameters to the fields tagged `path`. extractor reads
// one parameter by name, chi.URLParam for chi routers.
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "path", func(name string) []string {
			if extractor == nil {
				return nil
			}
			if value := extractor(r, name); value != "" {
				return []string{value}
			}
			return nil
		}, ErrFailedToParsePath)
	}
}
