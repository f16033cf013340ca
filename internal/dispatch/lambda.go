package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"
)

// LambdaAPI is the subset of the Lambda client used by the dispatcher.
type LambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, opts ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Lambda dispatches tasks as asynchronous function invocations
// (InvocationType=Event). The call returns once the invoke is accepted; the
// worker's result is never awaited.
type Lambda struct {
	client      LambdaAPI
	log         *zap.Logger
	generatorFn string
	variantsFn  string
}

// NewLambda creates a dispatcher invoking the named generator and variants
// functions.
func NewLambda(client LambdaAPI, generatorFn, variantsFn string, logger *zap.Logger) *Lambda {
	return &Lambda{
		client:      client,
		log:         logger.Named("dispatch"),
		generatorFn: generatorFn,
		variantsFn:  variantsFn,
	}
}

func (d *Lambda) DispatchGenerate(ctx context.Context, task GenerateTask) error {
	return d.invoke(ctx, d.generatorFn, task, task.CampaignID, task.ProductIndex)
}

func (d *Lambda) DispatchVariants(ctx context.Context, task VariantsTask) error {
	return d.invoke(ctx, d.variantsFn, task, task.CampaignID, task.ProductIndex)
}

func (d *Lambda) invoke(ctx context.Context, fn string, payload any, campaignID string, index int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatch: marshal payload for %s: %w", fn, err)
	}
	_, err = d.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(fn),
		InvocationType: types.InvocationTypeEvent,
		Payload:        data,
	})
	if err != nil {
		return fmt.Errorf("dispatch: invoke %s: %w", fn, err)
	}
	d.log.Debug("invoked worker",
		zap.String("function", fn),
		zap.String("campaign_id", campaignID),
		zap.Int("product_index", index))
	return nil
}
