// Command momo-provision creates a MoMo sandbox API user and key and prints
// the MOMO_API_USER and MOMO_API_KEY lines for the service environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/wanderlog/service-payment/internal/adapter"
	commonConfig "github.com/wanderlog/service-payment/internal/common/config"
	"github.com/wanderlog/service-payment/internal/common/logger"
	"go.uber.org/zap"
)

func main() {
	v, err := commonConfig.Load("payment")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	v.SetDefault("MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com")
	v.SetDefault("MOMO_CALLBACK_HOST", "localhost")

	baseURL := flag.String("base-url", v.GetString("MOMO_BASE_URL"), "MoMo API base URL")
	subscriptionKey := flag.String("subscription-key", v.GetString("MOMO_SUBSCRIPTION_KEY"), "Collections product subscription key")
	callbackHost := flag.String("callback-host", v.GetString("MOMO_CALLBACK_HOST"), "provider callback host registered for the user")
	userRef := flag.String("user", "", "API user reference (a new UUID when empty)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	zapLogger, err := logger.NewNamed(commonConfig.GetAppEnv(v), "momo-provision")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	if *subscriptionKey == "" {
		zapLogger.Fatal("subscription key is required (flag -subscription-key or MOMO_SUBSCRIPTION_KEY)")
	}
	if *userRef == "" {
		*userRef = uuid.NewString()
	} else if _, err := uuid.Parse(*userRef); err != nil {
		zapLogger.Fatal("user reference must be a UUID", zap.String("user", *userRef))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := adapter.NewMomoAdapter(adapter.MomoOptions{
		BaseURL:         *baseURL,
		SubscriptionKey: *subscriptionKey,
	}, zapLogger)

	if err := client.ProvisionAPIUser(ctx, *userRef, *callbackHost); err != nil {
		zapLogger.Fatal("failed to provision api user", zap.String("user", *userRef), zap.Error(err))
	}
	zapLogger.Info("api user provisioned", zap.String("user", *userRef))

	apiKey, err := client.CreateAPIKey(ctx, *userRef)
	if err != nil {
		zapLogger.Fatal("failed to create api key", zap.String("user", *userRef), zap.Error(err))
	}

	fmt.Fprintf(os.Stdout, "MOMO_API_USER=%s\nMOMO_API_KEY=%s\n", *userRef, apiKey)
}
