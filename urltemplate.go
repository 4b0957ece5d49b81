package main

import "strings"

// renderPublicURL substitutes {endpoint}, {bucket}, and {key} placeholders in
// a RemoteConfig.PublicURLTemplate. The default template mirrors a typical
// S3-compatible public URL shape: "{endpoint}/{bucket}/{key}".
func renderPublicURL(template, endpoint, bucket, key string) string {
	r := strings.NewReplacer(
		"{endpoint}", endpoint,
		"{bucket}", bucket,
		"{key}", key,
	)

	return r.Replace(template)
}
