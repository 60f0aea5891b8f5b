package render

import "path"

// Object keys are scoped by batch, entity and format so re-renders overwrite in place.

func FormatKey(batchID, entityID, format string) string {
	return path.Join("renders", batchID, entityID, format+".mp4")
}

func ThumbnailKey(batchID, entityID string) string {
	return path.Join("renders", batchID, entityID, "thumbnail.jpg")
}

func ManifestKey(jobID string) string {
	return path.Join("exports", jobID, "manifest.json")
}
