package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// AdamW implements Adam with decoupled weight decay.
//
// Unlike classic Adam with L2 regularization (where the decay term is added
// to the gradient and passes through the moment estimates), AdamW applies
// weight decay directly to the parameters, decoupled from the adaptive
// update:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * weight_decay * param          // Decoupled decay
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Adaptive update
//
// Decoupling keeps the effective regularization strength independent of the
// gradient magnitudes, which matters when moments vary a lot across
// parameters (as they do for convolutional warp predictors).
//
// Reference: "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2017)
//
// Example:
//
//	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{
//	    LR:          0.001,
//	    WeightDecay: 0.01,
//	}, backend)
//
//	for epoch := range epochs {
//	    loss := train_step(model, batch)
//	    grads := autodiff.Backward(loss, backend)
//	    optimizer.Step(grads)
//	    optimizer.ZeroGrad()
//	}
type AdamW[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	t           int                                             // Timestep for bias correction
	m           map[*nn.Parameter[B]]*tensor.Tensor[float32, B] // First moment estimates
	v           map[*nn.Parameter[B]]*tensor.Tensor[float32, B] // Second moment estimates
	backend     B
}

// AdamWConfig holds configuration for AdamW optimizer.
type AdamWConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps         float32    // Term for numerical stability (default: 1e-8)
	WeightDecay float32    // Decoupled weight decay coefficient (default: 0.01)
}

// NewAdamW creates a new AdamW optimizer.
//
// Parameters:
//   - params: Model parameters to optimize
//   - config: AdamW configuration (LR, Betas, Eps, WeightDecay)
//
// Returns a new AdamW optimizer with default hyperparameters if not specified.
// For no weight decay at all, use Adam instead.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
//   - WeightDecay: 0.01
func NewAdamW[B tensor.Backend](params []*nn.Parameter[B], config AdamWConfig, backend B) *AdamW[B] {
	// Set defaults
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	if config.WeightDecay == 0 {
		config.WeightDecay = 0.01
	}

	return &AdamW[B]{
		params:      params,
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		t:           0,
		m:           make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		v:           make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		backend:     backend,
	}
}

// Step performs a single optimization step using the AdamW algorithm.
//
// Applies decoupled weight decay followed by the bias-corrected adaptive
// update to all parameters. Parameters with no gradient are skipped, and
// skipped parameters are not decayed either.
func (a *AdamW[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	// Increment timestep
	a.t++

	// Compute bias correction factors
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		// Get gradient for this parameter
		grad := getGradient(param, grads)
		if grad == nil {
			// Parameter didn't participate in forward pass, skip
			continue
		}

		// Get or initialize first moment (m)
		m, mExists := a.m[param]
		if !mExists {
			m = tensor.Zeros[float32](param.Tensor().Shape(), a.backend)
			a.m[param] = m
		}

		// Get or initialize second moment (v)
		v, vExists := a.v[param]
		if !vExists {
			v = tensor.Zeros[float32](param.Tensor().Shape(), a.backend)
			a.v[param] = v
		}

		// Update moments and parameter
		a.updateParameter(param, grad, m, v, biasCorrection1, biasCorrection2)
	}
}

// updateParameter performs the AdamW update for a single parameter.
func (a *AdamW[B]) updateParameter(
	param *nn.Parameter[B],
	grad *tensor.RawTensor,
	m, v *tensor.Tensor[float32, B],
	biasCorrection1, biasCorrection2 float32,
) {
	// Get raw data for in-place updates
	gradData := grad.AsFloat32()
	mData := m.Raw().AsFloat32()
	vData := v.Raw().AsFloat32()
	paramData := param.Tensor().Raw().AsFloat32()

	// Update moments and parameters element-wise
	for i := range paramData {
		g := gradData[i]

		// Update biased first moment estimate
		// m_t = beta1 * m_{t-1} + (1-beta1) * grad
		mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g

		// Update biased second raw moment estimate
		// v_t = beta2 * v_{t-1} + (1-beta2) * grad²
		vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

		// Compute bias-corrected moment estimates
		mHat := mData[i] / biasCorrection1
		vHat := vData[i] / biasCorrection2

		// Decoupled weight decay
		// param = param - lr * weight_decay * param
		paramData[i] -= a.lr * a.weightDecay * paramData[i]

		// Adaptive update
		// param = param - lr * m_hat / (sqrt(v_hat) + eps)
		paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *AdamW[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *AdamW[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (a *AdamW[B]) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the current timestep.
func (a *AdamW[B]) GetTimestep() int {
	return a.t
}

// GetWeightDecay returns the weight decay coefficient.
func (a *AdamW[B]) GetWeightDecay() float32 {
	return a.weightDecay
}

// StateDict returns the optimizer state for serialization.
//
// Exports the first and second moment buffers for each parameter, plus
// the timestep used for bias correction.
//
// State keys: "m.{param_index}", "v.{param_index}", "t".
func (a *AdamW[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)

	for i, param := range a.params {
		m, exists := a.m[param]
		if !exists {
			continue // No moments yet (hasn't been used in training)
		}

		stateDict[fmt.Sprintf("m.%d", i)] = m.Raw()
		stateDict[fmt.Sprintf("v.%d", i)] = a.v[param].Raw()
	}

	// Timestep as a 1-element tensor so it travels with the moment buffers
	stateDict["t"] = tensor.Full[float32](tensor.Shape{1}, float32(a.t), a.backend).Raw()

	return stateDict
}

// LoadStateDict loads optimizer state from serialization.
//
// Restores moment buffers and timestep. Parameters without saved moments
// are initialized on their first step.
//
// Returns an error if moment shapes don't match parameter shapes.
func (a *AdamW[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	// Clear existing moments
	a.m = make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])
	a.v = make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])

	for i, param := range a.params {
		mRaw, mExists := stateDict[fmt.Sprintf("m.%d", i)]
		vRaw, vExists := stateDict[fmt.Sprintf("v.%d", i)]
		if !mExists || !vExists {
			// No moments for this parameter - will be initialized on first step
			continue
		}

		// Validate shapes
		if !mRaw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("first moment shape mismatch for parameter %d: expected %v, got %v",
				i, param.Tensor().Shape(), mRaw.Shape())
		}
		if !vRaw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("second moment shape mismatch for parameter %d: expected %v, got %v",
				i, param.Tensor().Shape(), vRaw.Shape())
		}

		a.m[param] = tensor.New[float32, B](mRaw, a.backend)
		a.v[param] = tensor.New[float32, B](vRaw, a.backend)
	}

	// Restore timestep
	if tRaw, exists := stateDict["t"]; exists {
		a.t = int(tRaw.AsFloat32()[0])
	}

	return nil
}
