package config

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/version"
)

type ssmClient interface {
	GetParametersWithContext(ctx aws.Context, input *ssm.GetParametersInput, opts ...request.Option) (*ssm.GetParametersOutput, error)
}

// tokenTransport authenticates requests to a custom SSM endpoint
type tokenTransport struct {
	token string
	next  http.RoundTripper
}

func (t tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set(awsSSMEndpointTokenHeaderName, t.token)
	req.Header.Set("x-requested-by", version.AppName+"("+version.Version+")")
	return t.next.RoundTrip(req)
}

func newSSMClient() (ssmClient, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, err
	}
	cfg := aws.NewConfig()
	if endpoint := os.Getenv(awsSSMEndpointURLVar); endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithHTTPClient(&http.Client{
			Transport: tokenTransport{
				token: os.Getenv(awsSSMEndpointTokenVar),
				next:  http.DefaultTransport,
			},
		})
	}
	return ssm.New(sess, cfg), nil
}

type awsSSMSource struct {
	appEnv AppEnv
	client ssmClient
}

func ssmName(parts ...string) string {
	return "/" + strings.Join(parts, "/")
}

// GetParameters reads "/<env>/<service>/<key>" names. When the cluster is
// known "/<env>/<cluster>/<service>/<key>" wins over the service name
func (s *awsSSMSource) GetParameters(ctx context.Context, params []param) (map[param]interface{}, error) {
	names := make([]*string, 0, len(params)*2)
	byName := make(map[string]param, len(params)*2)
	clusterNames := map[string]bool{}
	for _, p := range params {
		name := ssmName(s.appEnv.Name, p.service(), p.key())
		names = append(names, aws.String(name))
		byName[name] = p
		if s.appEnv.ClusterName != "" {
			clusterName := ssmName(s.appEnv.Name, s.appEnv.ClusterName, p.service(), p.key())
			names = append(names, aws.String(clusterName))
			byName[clusterName] = p
			clusterNames[clusterName] = true
		}
	}

	logger.WithData(diag.MsgData{"names": names}).Debug(ctx, "Fetching SSM parameters")
	output, err := s.client.GetParametersWithContext(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	values := make(map[param]interface{}, len(params))
	fromCluster := map[param]bool{}
	for _, awsParam := range output.Parameters {
		name := aws.StringValue(awsParam.Name)
		p, ok := byName[name]
		if !ok || fromCluster[p] {
			continue
		}
		values[p] = aws.StringValue(awsParam.Value)
		fromCluster[p] = clusterNames[name]
	}
	return values, nil
}

// AwsSSMOpt configures an SSM source
type AwsSSMOpt func(s *awsSSMSource)

func withSSMClient(client ssmClient) AwsSSMOpt {
	return func(s *awsSSMSource) {
		s.client = client
	}
}

// NewAWSSSMSource creates a source backed by AWS SSM parameter store
func NewAWSSSMSource(appEnv AppEnv, opts ...AwsSSMOpt) (Source, error) {
	source := &awsSSMSource{appEnv: appEnv}
	for _, opt := range opts {
		opt(source)
	}
	if source.client != nil {
		return source, nil
	}
	if endpoint := os.Getenv(awsSSMEndpointURLVar); endpoint != "" {
		logger.Info(context.TODO(), "Using SSM endpoint: %v", endpoint)
	}
	client, err := newSSMClient()
	if err != nil {
		return nil, err
	}
	source.client = client
	return source, nil
}
