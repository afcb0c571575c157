package domain

// MediaUploadResult is the outcome of a media upload. URL may be empty on a
// successful upload when signed url issuance failed; the object is stored and
// a url can be requested again later.
type MediaUploadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	URL     string `json:"url,omitempty"`
}
