// Package intent detects requests to render text as an image.
package intent

import (
	"regexp"
	"strings"

	"searchbot/internal/domain"
)

// extractPatterns capture the literal text to render. Tried in order, first
// match wins.
var extractPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)把[：:]([\s\S]+)(?:生成|转为|转换为|制作)(?:成)?图片`),
	regexp.MustCompile(`(?i)把([\s\S]+)(?:生成|转为|转换为|制作)(?:成)?图片`),
	regexp.MustCompile(`(?i)将[：:]([\s\S]+)(?:生成|转为|转换为|制作)(?:成)?图片`),
	regexp.MustCompile(`(?i)将([\s\S]+)(?:生成|转为|转换为|制作)(?:成)?图片`),
	regexp.MustCompile(`(?i)(?:生成|转为|转换为|制作)(?:成)?图片[：:]([\s\S]+)`),
	regexp.MustCompile(`(?i)关于([\s\S]+)(?:生成|制作|创建)(?:一张)?图片`),
	regexp.MustCompile(`(?i)turn (?:the following|this)(?: text)? into an image[：:]\s*([\s\S]+)`),
	regexp.MustCompile(`(?i)(?:convert|render) (?:the following|this)(?: text)? (?:to|into|as) an image[：:]\s*([\s\S]+)`),
	regexp.MustCompile(`(?i)regarding ([\s\S]+?),\s*(?:make|create|generate) an image`),
}

// keywords are matched as substrings of the lower-cased text.
var keywords = []string{
	"转为图片", "生成图片", "转换为图片", "转换成图片",
	"转成图片", "制作图片", "做成图片", "变成图片",
	"保存为图片", "导出为图片", "导出图片", "保存图片",
	"图片形式", "生成一张图片", "转为图像", "创建图片",
	"图形化", "可视化", "以图片方式", "渲染为图片",
	"输出为图片", "图像化", "以图片形式展示",
	"convert to image", "make an image", "generate image", "generate an image",
	"into an image", "as an image", "render as image", "save as image",
	"export as image", "visualize",
}

// phrasePatterns catch looser phrasings within short windows.
var phrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`能否.{0,10}(图片|图像)`),
	regexp.MustCompile(`请.{0,10}(图片|图像)`),
	regexp.MustCompile(`把.{0,20}(转|生成|制作|创建|变成).{0,10}(图片|图像)`),
	regexp.MustCompile(`将.{0,20}(转|生成|制作|创建|变成).{0,10}(图片|图像)`),
	regexp.MustCompile(`以.{0,10}(图片|图像).{0,10}(形式|方式)`),
	regexp.MustCompile(`please.{0,10}(image|picture)`),
	regexp.MustCompile(`could you.{0,10}(image|picture)`),
	regexp.MustCompile(`(as|in) an? (image|picture) (form|format)`),
}

// Classify reports whether text asks for an image and, when the request
// names the text to render, returns it trimmed.
func Classify(text string) domain.ImageDirective {
	for _, re := range extractPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if content := strings.TrimSpace(m[1]); content != "" {
				return domain.ImageDirective{IsImageRequest: true, ExtractedContent: content}
			}
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return domain.ImageDirective{IsImageRequest: true}
		}
	}

	for _, re := range phrasePatterns {
		if re.MatchString(lower) {
			return domain.ImageDirective{IsImageRequest: true}
		}
	}
	return domain.ImageDirective{}
}
