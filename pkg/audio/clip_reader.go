package audio

// ClipReader 按固定分片读取已解码的音频片段
//
// 主要功能:
//   - 固定分片输出 (最后一片可能更短)
//   - 可重复 Setup，分片缓冲区只在大小变化时重新分配
//   - 只做切分，不做重采样
//
// 只在主循环中使用，不是并发安全的
type ClipReader struct {
	clip     *Clip
	position int
	buffer   []int16
}

// Setup 绑定新的片段并从头开始读取
func (r *ClipReader) Setup(clip *Clip, fragment int) {
	r.clip = clip
	r.position = 0
	if len(r.buffer) != fragment {
		r.buffer = make([]int16, fragment)
	}
}

// Fragment 返回分片大小（采样点）
func (r *ClipReader) Fragment() int {
	return len(r.buffer)
}

// IsReady 是否还有未读取的数据
func (r *ClipReader) IsReady() bool {
	return r.clip != nil && r.position < len(r.clip.Samples)
}

// SampleRate 返回片段采样率，未绑定时为 0
func (r *ClipReader) SampleRate() int {
	if r.clip == nil {
		return 0
	}
	return r.clip.SampleRate
}

// Read 读取下一个分片，返回的切片在下次调用前有效
func (r *ClipReader) Read() ([]int16, bool) {
	if !r.IsReady() {
		return nil, false
	}
	n := copy(r.buffer, r.clip.Samples[r.position:])
	r.position += n
	return r.buffer[:n], true
}

// Clear 解除绑定
func (r *ClipReader) Clear() {
	r.clip = nil
	r.position = 0
}
