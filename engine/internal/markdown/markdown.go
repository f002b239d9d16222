// Package markdown converts extracted HTML fragments to markdown, shared
// by the CSS and density extraction strategies.
//
// Grounded directly on the teacher's HTMLToMarkdownConverter
// (internal/processor/processor.go), including its post-conversion
// cleanup pass, using the same html-to-markdown/v2 plugin set.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var (
	commentRE    = regexp.MustCompile(`<!--[\s\S]*?-->`)
	blankRunRE   = regexp.MustCompile(`\n{3,}`)
)

// Convert renders an HTML fragment to cleaned markdown.
func Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", fmt.Errorf("markdown: empty html content")
	}
	conv := converter.NewConverter(converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	))
	md, err := conv.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("markdown: conversion failed: %w", err)
	}
	return clean(md), nil
}

func clean(md string) string {
	cleaned := commentRE.ReplaceAllString(md, "")
	cleaned = blankRunRE.ReplaceAllString(cleaned, "\n\n")
	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
