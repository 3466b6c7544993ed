package upload

import (
	"context"
	"regexp"
	"strings"
)

// Uploader 上传最终视频，返回可访问的地址
type Uploader interface {
	Upload(ctx context.Context, localPath, videoID string) (string, error)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_\-.]`)

// SafeID 把调用方给的 id 变成可用作对象名的字符串
func SafeID(id string) string {
	s := strings.Trim(unsafeChars.ReplaceAllString(id, "_"), "_")
	if s == "" {
		return "video"
	}
	return s
}

// ObjectKey <prefix><safe_id>.mp4
func ObjectKey(prefix, videoID string) string {
	return prefix + SafeID(videoID) + ".mp4"
}
