package flickr

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// RESTURL is the single REST endpoint; the method is a query parameter
	RESTURL = "https://www.flickr.com/services/rest/"

	// PhotosURLPrefix is the public profile URL prefix used for slug lookups
	PhotosURLPrefix = "https://www.flickr.com/photos/"

	// DefaultBuddyIcon is served for accounts without a custom avatar
	DefaultBuddyIcon = "https://www.flickr.com/images/buddyicon.gif"

	// MaxPerPage is the largest page size the search API accepts
	MaxPerPage = 500
)

// REST method names
const (
	MethodFindByUsername = "flickr.people.findByUsername"
	MethodLookupUser     = "flickr.urls.lookupUser"
	MethodGetInfo        = "flickr.people.getInfo"
	MethodSearchPhotos   = "flickr.photos.search"
)

// BuildURL returns the REST URL for method with the fixed JSON parameters,
// the api key and params. Values in params override the fixed ones.
func BuildURL(restURL, method, apiKey string, params url.Values) string {
	q := url.Values{}
	q.Set("method", method)
	q.Set("format", "json")
	q.Set("nojsoncallback", "1")
	if apiKey != "" {
		q.Set("api_key", apiKey)
	}
	for k, vs := range params {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return restURL + "?" + q.Encode()
}

// ProfileURL returns the public photostream URL for a username or path alias
func ProfileURL(slug string) string {
	return PhotosURLPrefix + url.PathEscape(slug) + "/"
}

// BuddyIconURL returns the avatar URL for p
func BuddyIconURL(p Person) string {
	if p.IconServer == "" || p.IconServer == "0" || p.IconFarm == 0 {
		return DefaultBuddyIcon
	}
	return fmt.Sprintf("https://farm%d.staticflickr.com/%s/buddyicons/%s.jpg", p.IconFarm, p.IconServer, p.NSID)
}

// IsURL reports whether identifier should be resolved by URL lookup
func IsURL(identifier string) bool {
	lower := strings.ToLower(identifier)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "www.flickr.com/") ||
		strings.HasPrefix(lower, "flickr.com/")
}
