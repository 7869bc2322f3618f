package utils

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/enduroplan/fueltrace-service-go/log"
)

// probe reports whether a single connection attempt succeeded.
type probe func(ctx context.Context) bool

func waitFor(what, target string, timeout, interval time.Duration, p probe) error {
	deadline := time.Now().Add(timeout)
	start := time.Now()
	log.Debug("wait for "+what,
		log.String("target", target),
		log.String("timeout", timeout.String()))
	for time.Now().Before(deadline) {
		if p(context.Background()) {
			log.Debug(what+" successful",
				log.String("target", target),
				log.String("duration", time.Since(start).String()))
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("%s could not be reached after %v", target, timeout)
}

func WaitForTCP(addr string, timeout time.Duration) error {
	var d net.Dialer
	return waitFor("tcp connection", addr, timeout, 200*time.Millisecond,
		func(ctx context.Context) bool {
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return false
			}
			conn.Close()
			return true
		})
}

// ExtractFromNatsURL returns the host:port part of a NATS URL, defaulting
// to port 4222. Credentials in the URL are ignored.
func ExtractFromNatsURL(url string) string {
	param := resolveRegex(
		"^nats://((?P<cred>.*)@)?(?P<addr>(?P<host>.*?)(:(?P<port>\\d+))?)$", url)
	if len(param) == 0 {
		return ""
	}
	if port, ok := param["port"]; ok && port != "" {
		return param["addr"] // if port is found, the addr contains our wanted value
	}
	return fmt.Sprintf("%s:4222", param["addr"])
}

// ExtractFromDBURL returns the host:port part of a postgresql URL,
// defaulting to port 5432.
func ExtractFromDBURL(url string) string {
	param := resolveRegex(
		"^postgresql://(.*@)(?P<addr>(?P<host>.*?)(:(?P<port>\\d+))?)/.*", url)
	if len(param) == 0 {
		return ""
	}
	if port, ok := param["port"]; ok && port != "" {
		return param["addr"] // if port is found, the addr contains our wanted value
	}
	return fmt.Sprintf("%s:5432", param["addr"])
}

func resolveRegex(regEx, url string) map[string]string {
	compRegEx := regexp.MustCompile(regEx)
	match := compRegEx.FindStringSubmatch(url)

	ret := make(map[string]string)
	for i, name := range compRegEx.SubexpNames() {
		if i > 0 && i <= len(match) {
			ret[name] = match[i]
		}
	}
	return ret
}
