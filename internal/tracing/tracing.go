// Package tracing wraps OpenTelemetry so the scheduler and registry can open
// spans without importing the SDK. Until Init succeeds every span is a no-op
// taken from the global (noop) tracer provider.
package tracing

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ChuLiYu/spacetime-runtime"

// installation 持有已安裝的 provider 與它寫入的輸出檔
type installation struct {
	once     sync.Once
	err      error
	provider *sdktrace.TracerProvider
	output   io.Closer
}

var global installation

// Init installs a tracer provider exporting spans as JSON to outputFile, or
// to stdout when outputFile is empty. Only the first call has any effect;
// later calls do not touch outputFile. The file stays open until Shutdown.
func Init(serviceName, serviceVersion, outputFile string) error {
	return global.install(serviceName, serviceVersion, func() (sdktrace.SpanExporter, io.Closer, error) {
		return fileExporter(outputFile)
	})
}

// InitWithExporter installs a tracer provider backed by exporter. Tests use it
// with an in-memory exporter.
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) error {
	if exporter == nil {
		return nil
	}
	return global.install(serviceName, serviceVersion, func() (sdktrace.SpanExporter, io.Closer, error) {
		return exporter, nil, nil
	})
}

// Shutdown flushes and stops the installed provider, if any, then closes its
// output file.
func Shutdown(ctx context.Context) error {
	return global.shutdown(ctx)
}

func fileExporter(path string) (sdktrace.SpanExporter, io.Closer, error) {
	if path == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
		return exporter, nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return exporter, f, nil
}

// install 只在第一次呼叫時開啟 exporter 並設定全域 provider
func (in *installation) install(serviceName, serviceVersion string, open func() (sdktrace.SpanExporter, io.Closer, error)) error {
	in.once.Do(func() {
		exporter, output, err := open()
		if err != nil {
			in.err = err
			return
		}

		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("service.version", serviceVersion),
			),
		)
		if err != nil {
			if output != nil {
				output.Close()
			}
			in.err = err
			return
		}

		in.output = output
		in.provider = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(in.provider)
	})

	return in.err
}

func (in *installation) shutdown(ctx context.Context) error {
	if in.provider == nil {
		return nil
	}
	err := in.provider.Shutdown(ctx)
	if in.output != nil {
		if cerr := in.output.Close(); err == nil {
			err = cerr
		}
		in.output = nil
	}
	return err
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// StartSpan starts an internal span named name under ctx.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, &Span{span: span}
}

// SetInt attaches an integer attribute.
func (s *Span) SetInt(key string, value uint64) *Span {
	if s == nil {
		return s
	}
	s.span.SetAttributes(attribute.Int64(key, int64(value)))
	return s
}

// SetString attaches a string attribute.
func (s *Span) SetString(key, value string) *Span {
	if s == nil {
		return s
	}
	s.span.SetAttributes(attribute.String(key, value))
	return s
}

// SetStatus records err on the span, or an OK status when err is nil.
func (s *Span) SetStatus(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// End finishes the span.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.span.End()
}
