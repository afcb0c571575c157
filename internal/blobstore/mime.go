package blobstore

// extensions maps the media content types the gateway accepts to the file
// extension stored in object names. Unknown types map to an empty extension.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",

	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"video/quicktime": ".mov",

	"audio/aac":  ".aac",
	"audio/mp4":  ".m4a",
	"audio/mpeg": ".mp3",
	"audio/ogg":  ".ogg",
	"audio/wav":  ".wav",

	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain": ".txt",
}

// ExtensionForMIME returns the object name extension for a content type
func ExtensionForMIME(mimeType string) string {
	return extensions[mimeType]
}
