package endpoints

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"apiharvest/internal/capture"
	"apiharvest/pkg/model"
)

const maxExamples = 20

// RenderExamples 为调用次数最多的接口生成可直接回放的 curl 脚本
func RenderExamples(cat model.EndpointCatalog, snap *model.SessionSnapshot, now time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("# Auto-generated curl examples from apiharvest captures\n")
	fmt.Fprintf(&b, "# Generated: %s\n\n", now.UTC().Format(time.RFC3339))

	cookie := cookieHeader(snap.Cookies)
	authNames := sortedKeys(snap.AuthHeaders)

	count := 0
	for _, ep := range cat.Endpoints {
		if count >= maxExamples {
			break
		}
		if len(ep.ObservedURLs) == 0 || capture.ShouldSkip(ep.ObservedURLs[0]) {
			continue
		}
		target := ep.ObservedURLs[0]

		fmt.Fprintf(&b, "# %s\n", ep.Pattern)
		fmt.Fprintf(&b, "# Seen: %d times, last: %s\n", ep.TimesSeen, ep.LastSeen)

		method := "GET"
		if len(ep.Methods) > 0 {
			method = ep.Methods[0]
		}
		b.WriteString("curl")
		if method != "GET" {
			fmt.Fprintf(&b, " -X %s", method)
		}
		fmt.Fprintf(&b, " %s", shellQuote(target))
		if cookie != "" {
			writeHeader(&b, "Cookie", cookie)
		}
		for _, name := range authNames {
			writeHeader(&b, name, snap.AuthHeaders[name])
		}
		if snap.UserAgent != "" {
			writeHeader(&b, "User-Agent", snap.UserAgent)
		}
		if hasBody(method) && advertisesJSON(ep.RequestContentTypes) {
			writeHeader(&b, "Content-Type", "application/json")
			b.WriteString(" \\\n  -d '{}'")
		}
		b.WriteString("\n\n")
		count++
	}
	return b.Bytes()
}

func writeHeader(b *bytes.Buffer, name, value string) {
	fmt.Fprintf(b, " \\\n  -H %s", shellQuote(name+": "+value))
}

func hasBody(method string) bool {
	return method == "POST" || method == "PUT" || method == "PATCH"
}

func advertisesJSON(cts []string) bool {
	for _, ct := range cts {
		if strings.Contains(strings.ToLower(ct), "json") {
			return true
		}
	}
	return false
}

func cookieHeader(cookies map[string]string) string {
	names := sortedKeys(cookies)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+"="+cookies[n])
	}
	return strings.Join(parts, "; ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shellQuote 单引号包裹，内部单引号转义为 '\''
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
