package walker

import (
	"fmt"

	"github.com/spf13/afero"
)

func ExampleEngine_Process() {
	fsys := afero.NewMemMapFs()
	for _, file := range []string{
		"/project/main.go",
		"/project/docs/guide.md",
		"/project/vendor/lib/lib.go",
		"/project/internal/walker/walker.go",
	} {
		if err := afero.WriteFile(fsys, file, []byte("example content"), 0644); err != nil {
			panic(err)
		}
	}

	handler := HandlerFunc(func(entry Entry) (Signal, error) {
		fmt.Println(entry.Path)
		switch entry.Name() {
		case "vendor":
			return SkipAll, nil
		case "docs":
			return SkipFiles, nil
		}
		return Continue, nil
	})

	engine, err := New(handler, WithOrder(FilesFirst), WithSortByName(true), WithFs(fsys))
	if err != nil {
		panic(err)
	}

	if err := engine.Process("/project"); err != nil {
		panic(err)
	}

	// Output:
	// /project
	// /project/main.go
	// /project/docs
	// /project/internal
	// /project/internal/walker
	// /project/internal/walker/walker.go
	// /project/vendor
}
