package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"dotrecon/pkg/config"
	"dotrecon/pkg/recon"
	"dotrecon/pkg/store"
	"dotrecon/pkg/unmix"
)

func main() {
	// Parse command line arguments
	measurementsPath := flag.String("measurements", "", "Measurement series artifact (YAML)")
	operatorPath := flag.String("operator", "", "Inverse operator artifact (YAML)")
	mappingPath := flag.String("mapping", "", "Spatial mapping artifact (YAML)")
	configPath := flag.String("config", "", "Optional run configuration file (YAML)")
	outputDir := flag.String("output", "", "Output directory (default from config)")
	method := flag.String("method", "", "Reconstruction method: standard or multispectral")
	space := flag.String("space", "", "Reconstruction space: volume or cortex")
	reg := flag.String("reg", "", "Regularization method: tikhonov, covariance or spatial")
	hyper := flag.String("hyper", "", "Hyperparameter, comma-separated for a vector")
	imageType := flag.String("image-type", "", "Output images: haem, mua or both")
	saveVolume := flag.Bool("save-volume", true, "Keep volume-space images in the output")
	persist := flag.Bool("persist", true, "Write the image set to the output directory")
	workers := flag.Int("workers", 0, "Frame workers (default: all available cores)")
	flag.Parse()

	// Validate inputs
	if *measurementsPath == "" || *operatorPath == "" || *mappingPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load run configuration, then apply explicit flag overrides on top
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlagOverrides(cfg, *method, *space, *reg, *hyper, *imageType)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "save-volume":
			cfg.Reconstruction.SaveVolumeImages = *saveVolume
		case "persist":
			cfg.Reconstruction.Persist = *persist
		case "workers":
			cfg.Processing.Workers = *workers
		case "output":
			cfg.Output.Directory = *outputDir
		}
	})

	params, err := buildParams(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Load input artifacts
	series, err := store.LoadMeasurementSeries(*measurementsPath)
	if err != nil {
		log.Fatalf("Failed to load measurement series: %v", err)
	}
	operator, err := store.LoadInverseOperator(*operatorPath)
	if err != nil {
		log.Fatalf("Failed to load inverse operator: %v", err)
	}
	mapping, err := store.LoadSpatialMapping(*mappingPath)
	if err != nil {
		log.Fatalf("Failed to load spatial mapping: %v", err)
	}

	params.Series = series
	params.Operator = operator
	params.Mapping = mapping
	params.Sink = &store.ImageWriter{Dir: cfg.Output.Directory}

	fmt.Println("================================")
	fmt.Println("DOTRECON - DIFFUSE OPTICAL TOMOGRAPHY IMAGE RECONSTRUCTION")
	fmt.Println("================================")
	fmt.Printf("Series: %s (%d frames, %d channels, %d wavelengths)\n",
		series.ID, series.FrameCount(), series.ChannelCount(), series.WavelengthCount())
	fmt.Printf("Operator: %s\n", operator.ID)

	// Run the reconstruction pipeline
	reconstructor := recon.NewReconstructor(params)
	startTime := time.Now()
	set, prov, err := reconstructor.Process()
	if err != nil {
		log.Fatalf("Reconstruction failed: %v", err)
	}
	processingTime := time.Since(startTime)

	resolved := reconstructor.Resolved()
	fmt.Printf("\nReconstruction completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("\nEffective configuration:\n")
	fmt.Printf("========================\n")
	fmt.Printf("Method: %s\n", resolved.Method)
	fmt.Printf("Space: %s\n", resolved.Space)
	fmt.Printf("Regularization: %s\n", resolved.Reg)
	fmt.Printf("Hyperparameter: %v\n", resolved.HyperParameter)
	fmt.Printf("Image type: %s\n", resolved.Image)
	fmt.Printf("Workers: %d\n", resolved.Workers)

	if resolved.Method == recon.MethodStandard && resolved.Image != recon.ImageMuA {
		if cond, err := unmix.Condition(series.Extinction, series.Wavelengths); err == nil {
			fmt.Printf("Unmixing condition number: %.3g\n", cond)
		}
	}

	fmt.Printf("\nImage summaries (surface space):\n")
	fmt.Printf("================================\n")
	for _, s := range recon.Summarize(set) {
		fmt.Printf("%-12s mean=%.6g std=%.6g min=%.6g max=%.6g\n",
			s.Name, s.Mean, s.StdDev, s.Min, s.Max)
	}

	if resolved.Persist {
		fmt.Printf("\nImage set saved to: %s\n", cfg.Output.Directory)
		fmt.Printf("Provenance: created %s from series %s, operator %s\n",
			prov.CreatedAt.Format(time.RFC3339), prov.SeriesID, prov.OperatorID)
	} else {
		fmt.Println("\nPersist disabled, image set not written")
	}
}

// applyFlagOverrides copies non-empty option flags into the configuration.
func applyFlagOverrides(cfg *config.Config, method, space, reg, hyper, imageType string) {
	if method != "" {
		cfg.Reconstruction.Method = method
	}
	if space != "" {
		cfg.Reconstruction.Space = space
	}
	if reg != "" {
		cfg.Reconstruction.Reg = reg
	}
	if imageType != "" {
		cfg.Reconstruction.ImageType = imageType
	}
	if hyper != "" {
		var values []float64
		for _, part := range strings.Split(hyper, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				log.Fatalf("Invalid hyperparameter %q: %v", part, err)
			}
			values = append(values, v)
		}
		cfg.Reconstruction.HyperParameter = values
	}
}

// buildParams validates the option strings once at the boundary and
// builds typed engine parameters.
func buildParams(cfg *config.Config) (*recon.Params, error) {
	method, err := recon.ParseReconMethod(cfg.Reconstruction.Method)
	if err != nil {
		return nil, err
	}
	space, err := recon.ParseReconSpace(cfg.Reconstruction.Space)
	if err != nil {
		return nil, err
	}
	regMethod, err := recon.ParseRegMethod(cfg.Reconstruction.Reg)
	if err != nil {
		return nil, err
	}
	imageType, err := recon.ParseImageType(cfg.Reconstruction.ImageType)
	if err != nil {
		return nil, err
	}

	return &recon.Params{
		Method:           method,
		Space:            space,
		Reg:              regMethod,
		HyperParameter:   cfg.Reconstruction.HyperParameter,
		Image:            imageType,
		SaveVolumeImages: cfg.Reconstruction.SaveVolumeImages,
		Persist:          cfg.Reconstruction.Persist,
		Workers:          cfg.Processing.Workers,
	}, nil
}
