// Package postgres embebe las migraciones SQL para aplicarlas desde el
// binario, sin depender del layout del filesystem en deploy.
package postgres

import "embed"

//go:embed *.sql
var FS embed.FS

// List retorna los nombres de migración con el sufijo dado ("_up.sql" o
// "_down.sql"), sin ordenar.
func List(suffix string) ([]string, error) {
	entries, err := FS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			out = append(out, name)
		}
	}
	return out, nil
}
