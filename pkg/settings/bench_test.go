package settings

import (
	"context"
	"testing"
)

func BenchmarkResolve_AllLayers(b *testing.B) {
	reader := &stubReader{settings: map[Scope]*Setting{
		ScopeUser:    {Scope: ScopeUser, Category: CategoryDependencies, Value: []byte(`{"autoBlockTasks":false}`), Enabled: true},
		ScopeProject: {Scope: ScopeProject, Category: CategoryDependencies, Value: []byte(`{"autoBlockTasks":true}`), Enabled: true},
		ScopeGlobal:  {Scope: ScopeGlobal, Category: CategoryDependencies, Value: []byte(`{}`), Enabled: true},
	}}
	r, err := NewResolver(reader, EmbeddedDefaults())
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	project := int64(7)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Resolve(ctx, CategoryDependencies, 1, &project); err != nil {
			b.Fatal(err)
		}
	}
}
