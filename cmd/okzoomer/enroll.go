package main

import (
	"context"
	"fmt"
	"os"

	"github.com/okzoomer/okzoomer/internal/duo"
	"github.com/okzoomer/okzoomer/internal/qr"
)

// runDuoEnroll activates a new Duo device from an activation payload
// and saves the resulting HOTP URI to the config file. The argument is
// either the raw payload ("<code>-<base64 hostname>", shown under the
// enrollment QR code) or a path to a saved QR image.
func runDuoEnroll(ctx context.Context, arg string) error {
	if arg == "" {
		return fmt.Errorf("duo-enroll requires an activation payload or QR image path")
	}

	payload := arg
	if data, err := os.ReadFile(arg); err == nil {
		payload, err = qr.Decode(data)
		if err != nil {
			return fmt.Errorf("failed to decode QR image %s: %w", arg, err)
		}
		logger.Debug().Str("path", arg).Msg("Decoded activation payload from QR image")
	}

	client := duo.NewClient(duo.WithLogger(logger))
	enrollment, err := client.Activate(ctx, payload)
	if err != nil {
		return err
	}

	fmt.Printf("HOTP URI: %s\n", enrollment.OTP.URI())
	fmt.Printf("Device Key: %s\n", enrollment.DeviceKey)

	config.CalNet.Duo.OTPURI = enrollment.OTP.URI()
	if *deviceName != "" {
		config.CalNet.Duo.DeviceName = *deviceName
	}
	if err := config.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Saved to %s. Name the device %q in the Duo device portal,\n", configPath, config.CalNet.Duo.DeviceName)
	fmt.Println("then run the `check` command to verify.")
	return nil
}
