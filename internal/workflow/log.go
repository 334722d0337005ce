package workflow

import (
	"fmt"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// VerifyLog checks that a stage log follows the fixed sequence: stages appear
// in order without gaps, a stage repeats only as consecutive retries, every
// attempt number increments from zero, and only the last entry of a stage may
// be a success.
//
// It is used to reject corrupted checkpoints on resume.
func VerifyLog(results []domain.StageResult) error {
	prev := -1
	var prevResult domain.StageResult
	for i, res := range results {
		idx := res.Stage.Index()
		if idx < 0 || res.Stage.IsTerminal() {
			return fmt.Errorf("entry %d: stage %q cannot appear in the log", i, res.Stage)
		}
		switch {
		case i == 0:
			if res.Stage != domain.StagePending {
				return fmt.Errorf("entry 0: log starts at %s", res.Stage)
			}
			if res.Attempt != 0 {
				return fmt.Errorf("entry 0: first attempt is %d", res.Attempt)
			}
		case idx == prev:
			if prevResult.Success {
				return fmt.Errorf("entry %d: %s repeated after success", i, res.Stage)
			}
			if res.Attempt != prevResult.Attempt+1 {
				return fmt.Errorf("entry %d: %s attempt %d follows attempt %d", i, res.Stage, res.Attempt, prevResult.Attempt)
			}
		case idx == prev+1:
			if !prevResult.Success {
				return fmt.Errorf("entry %d: %s entered after failed %s", i, res.Stage, prevResult.Stage)
			}
			if res.Attempt != 0 {
				return fmt.Errorf("entry %d: %s starts at attempt %d", i, res.Stage, res.Attempt)
			}
		default:
			return fmt.Errorf("entry %d: %s out of order after %s", i, res.Stage, prevResult.Stage)
		}
		prev = idx
		prevResult = res
	}
	return nil
}
