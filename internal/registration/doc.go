// Package registration trains and runs cyclic warp predictors that carry
// labels between matched microscopy patches.
//
// Training consumes view pairs: two views of the same subject, one
// annotated. The predictor outputs a forward and a reverse displacement
// field; the loss pulls the unannotated view onto the annotated one and
// back again, so the fields become mutually consistent without any label
// term. Label transfer through the reverse field is scored every epoch as
// dice (binary labels) or mean absolute error (continuous labels), giving
// a segmentation metric next to the pre-warp reference baseline.
//
// The pieces:
//   - FolderDataset serves annotated patches from disk and synthesizes
//     the second view with seeded dihedral transforms
//   - Trainer runs the loop: AdamW, cosine annealing, early stopping on
//     validation loss, best-model checkpoints, snapshot grids
//   - Runner loads matched test/annotated pairs, warps labels onto the
//     test patches, writes the masks and hands them to the stitcher
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net, err := model.NewRegistry[*autodiff.AutodiffBackend[*cpu.CPUBackend]]().
//	    New("unet", model.Config{}, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	trainer, err := registration.NewTrainer(net, backend, registration.TrainConfig{
//	    CheckpointPath: "results/checkpoints/run.cwpt",
//	    Out:            os.Stdout,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	history, err := trainer.Fit(trainSet, valSet)
package registration
