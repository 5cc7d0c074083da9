package app

import "regexp"

// domainRegex matches fully qualified domain names. Only FQDNs are eligible
// for certificate requests.
var domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// ValidateDomain reports whether domain is a valid FQDN.
func ValidateDomain(domain string) bool {
	return domainRegex.MatchString(domain)
}
