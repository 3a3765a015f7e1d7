package keys

import "testing"

func BenchmarkFor(b *testing.B) {
	b.ReportAllocs()
	var sink Session
	for i := 0; i < b.N; i++ {
		sink = For("lab")
	}
	_ = sink
}
