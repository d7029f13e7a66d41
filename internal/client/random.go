package client

import (
	"github.com/samber/lo"
)

const (
	// PrefixLength is the length of the random blob name prefix.
	PrefixLength = 16

	AvatarFolder = "avatars"
	ImageFolder  = "images"
)

// RandomName returns a random alphanumeric string of length n.
func RandomName(n int) string {
	return lo.RandomString(n, lo.AlphanumericCharset)
}

// BlobPath builds <folder>/<16 alnum>_<filename> for a freshly picked file.
func BlobPath(folder, filename string) string {
	return folder + "/" + RandomName(PrefixLength) + "_" + filename
}
