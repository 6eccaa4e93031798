// Copyright 2023 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ProgressTestSuite struct {
	suite.Suite
	tracer *Tracer
}

func (suite *ProgressTestSuite) SetupTest() {
	suite.tracer = NewTracer("trainer")
}

func (suite *ProgressTestSuite) TestEpochSpan() {
	_, span := suite.tracer.Start(context.Background(), "HRDR.Fit", 20)
	progressList := suite.tracer.List()
	suite.Equal(1, len(progressList))
	suite.Equal("trainer", progressList[0].Tracer)
	suite.Equal("HRDR.Fit", progressList[0].Name)
	suite.Equal(StatusRunning, progressList[0].Status)
	suite.Empty(progressList[0].Error)
	suite.Equal(20, progressList[0].Total)
	suite.Empty(progressList[0].Count)
	suite.LessOrEqual(progressList[0].StartTime, time.Now())

	for i := 0; i < 5; i++ {
		span.Add(1)
	}
	suite.Equal(5, span.Count())
	progressList = suite.tracer.List()
	suite.Equal(StatusRunning, progressList[0].Status)
	suite.Equal(5, progressList[0].Count)

	span.End()
	progressList = suite.tracer.List()
	suite.Equal(StatusComplete, progressList[0].Status)
	suite.Equal(20, progressList[0].Count)
	suite.Less(progressList[0].StartTime, progressList[0].FinishTime)
}

func (suite *ProgressTestSuite) TestFailedSpan() {
	_, span := suite.tracer.Start(context.Background(), "HRDR.Fit", 20)
	span.Add(3)
	span.Fail(errors.New("diverged"))
	progressList := suite.tracer.List()
	suite.Equal(1, len(progressList))
	suite.Equal(StatusFailed, progressList[0].Status)
	suite.Equal("diverged", progressList[0].Error)
	suite.Equal(3, progressList[0].Count)
}

func (suite *ProgressTestSuite) TestNestedSpan() {
	ctx, fitSpan := suite.tracer.Start(context.Background(), "HRDR.Fit", 20)
	fitSpan.Add(4)

	// The running child refines the granularity of the root.
	childCtx, exportSpan := Start(ctx, "HRDR.MaterializeWeights", 10)
	exportSpan.Add(5)
	progressList := suite.tracer.List()
	suite.Equal(1, len(progressList))
	suite.Equal("HRDR.Fit", progressList[0].Name)
	suite.Equal(200, progressList[0].Total)
	suite.Equal(45, progressList[0].Count)

	exportSpan.End()
	progressList = suite.tracer.List()
	suite.Equal(StatusRunning, progressList[0].Status)
	suite.Equal(20, progressList[0].Total)
	suite.Equal(4, progressList[0].Count)

	Fail(childCtx, errors.New("batch failed"))
	progressList = suite.tracer.List()
	suite.Equal(StatusFailed, progressList[0].Status)
	suite.Equal("batch failed", progressList[0].Error)
}

func (suite *ProgressTestSuite) TestDetachedSpan() {
	// Spans started without a tracer in the context are tracked by nobody
	// but still report their own progress.
	_, span := Start(context.Background(), "HRDR.MaterializeWeights", 10)
	span.Add(10)
	span.End()
	suite.Empty(suite.tracer.List())
	progress := span.Progress()
	suite.Equal(StatusComplete, progress.Status)
	suite.Equal(10, progress.Count)

	_, span = Start(nil, "HRDR.MaterializeWeights", 10)
	suite.NotNil(span)
	suite.NotPanics(func() { Fail(nil, errors.New("ignored")) })
	suite.NotPanics(func() { Fail(context.Background(), errors.New("ignored")) })
}

func TestProgressTestSuite(t *testing.T) {
	suite.Run(t, new(ProgressTestSuite))
}
