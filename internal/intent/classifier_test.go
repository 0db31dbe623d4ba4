package intent

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		isImage   bool
		extracted string
	}{
		{"plain question", "What is the capital of France?", false, ""},
		{"plain answer", "Paris is the capital and largest city of France.", false, ""},
		{"empty", "", false, ""},
		{"chinese extraction with colon", "把：今天天气很好 生成图片", true, "今天天气很好"},
		{"chinese extraction trailing", "生成图片：春天来了", true, "春天来了"},
		{"chinese about", "关于量子计算生成一张图片", true, "量子计算"},
		{"english keyword only", "Explain photosynthesis and turn it into an image", true, ""},
		{"english keyword uppercase", "Please CONVERT TO IMAGE", true, ""},
		{"english extraction", "Turn the following into an image: Go is fun", true, "Go is fun"},
		{"english regarding", "Regarding the water cycle, make an image", true, "the water cycle"},
		{"chinese keyword", "这个内容可以可视化吗", true, ""},
		{"loose chinese phrase", "能否帮我做一张图像", true, ""},
		{"loose english phrase", "please make image of this", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			if got.IsImageRequest != tt.isImage {
				t.Fatalf("IsImageRequest = %v, want %v", got.IsImageRequest, tt.isImage)
			}
			if got.ExtractedContent != tt.extracted {
				t.Errorf("ExtractedContent = %q, want %q", got.ExtractedContent, tt.extracted)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	text := "把：hello 生成图片"
	first := Classify(text)
	for i := 0; i < 10; i++ {
		if got := Classify(text); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}
