package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/document-export-api/internal/delivery"
	"github.com/document-export-api/internal/exportconfig"
	"github.com/document-export-api/internal/exporter"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/normalize"
	"github.com/document-export-api/internal/processor"
	"github.com/document-export-api/internal/validation"
	"github.com/rs/zerolog"
)

const rows = 1000

func sampleRecords(n int) []models.Record {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]models.Record, n)
	for i := 0; i < n; i++ {
		records[i] = models.Record{
			"id":     i,
			"email":  fmt.Sprintf("user%06d@test.com", i),
			"name":   fmt.Sprintf("Usuario %d", i),
			"active": i%2 == 0,
			"amount": float64(i) * 1.5,
			"address": map[string]interface{}{
				"city": "Madrid",
				"zip":  fmt.Sprintf("%05d", i),
			},
			"tags":       []interface{}{"a", "b"},
			"created_at": created.Add(time.Duration(i) * time.Hour),
		}
	}
	return records
}

func sampleColumns() []models.Column {
	return []models.Column{
		{Key: "id", Header: "ID", Type: models.ColumnNumber},
		{Key: "name", Header: "Nombre"},
		{Key: "email", Header: "Email"},
		{Key: "amount", Header: "Importe", Type: models.ColumnNumber},
		{Key: "active", Header: "Activo", Type: models.ColumnBoolean},
		{Key: "created_at", Header: "Alta", Type: models.ColumnDate},
	}
}

// BenchmarkFlatten benchmarks the flattening pass over nested records
func BenchmarkFlatten(b *testing.B) {
	records := sampleRecords(rows)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		processor.New(records, nil, nil).Process()
	}

	b.ReportMetric(float64(rows*b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkProject benchmarks projection onto declared columns
func BenchmarkProject(b *testing.B) {
	records := sampleRecords(rows)
	columns := sampleColumns()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		processor.New(records, columns, nil).Process()
	}

	b.ReportMetric(float64(rows*b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkNormalize benchmarks scalar text conversion of mixed values
func BenchmarkNormalize(b *testing.B) {
	values := []interface{}{nil, 42, 3.14, true, "texto", time.Now(), map[string]interface{}{"a": 1}, []interface{}{1, 2}}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		for _, v := range values {
			_ = normalize.Scalar(v)
		}
	}
}

// BenchmarkValidation benchmarks the pre-render validation pass
func BenchmarkValidation(b *testing.B) {
	data := &models.ExportData{Records: sampleRecords(rows)}
	columns := sampleColumns()
	cfg := exportconfig.System("xlsx")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		validation.ValidateExportData(data, columns, cfg, "xlsx")
	}
}

// BenchmarkExport benchmarks the full pipeline for every format
func BenchmarkExport(b *testing.B) {
	data := &models.ExportData{
		Records:  sampleRecords(rows),
		Metadata: &models.Metadata{Title: "Benchmark", Author: "bench"},
	}
	columns := sampleColumns()
	exp := exporter.New(exporter.NewRegistry(zerolog.Nop()), exportconfig.NewDefaults(), nil, zerolog.Nop())
	patch := exportconfig.Patch(map[string]interface{}{"autoDownload": false})

	for _, format := range []string{"csv", "json", "xlsx", "pdf"} {
		b.Run(format, func(b *testing.B) {
			b.ReportAllocs()
			var size int64
			for i := 0; i < b.N; i++ {
				result := exp.Export(context.Background(), data, columns, format, patch)
				if !result.Success {
					b.Fatalf("export failed: %v", result.Errors)
				}
				size = result.Size
			}
			b.SetBytes(size)
			b.ReportMetric(float64(rows*b.N)/b.Elapsed().Seconds(), "rows/sec")
		})
	}
}

// BenchmarkCreateBlob benchmarks blob construction for delivery
func BenchmarkCreateBlob(b *testing.B) {
	content := make([]byte, 1<<20)

	b.ResetTimer()
	b.ReportAllocs()
	b.SetBytes(int64(len(content)))

	for i := 0; i < b.N; i++ {
		if _, err := delivery.CreateBlob(content, "application/pdf"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkWorkerPoolSemaphore benchmarks semaphore acquire/release
func BenchmarkWorkerPoolSemaphore(b *testing.B) {
	sem := make(chan struct{}, 16)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		// Acquire
		sem <- struct{}{}
		// Release
		<-sem
	}
}

// BenchmarkWorkerPoolParallel benchmarks parallel semaphore operations
func BenchmarkWorkerPoolParallel(b *testing.B) {
	sem := make(chan struct{}, 16)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sem <- struct{}{}
			<-sem
		}
	})
}
